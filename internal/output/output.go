package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/brendadeeznuts1111/warden/internal/core"
	"github.com/brendadeeznuts1111/warden/internal/core/balance"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// BackendReport pairs the active strategy with backend status rows.
type BackendReport struct {
	Strategy string                 `json:"strategy"`
	Backends []balance.TargetStatus `json:"backends"`
}

// Formatter renders admission reports and backend listings.
type Formatter interface {
	FormatReport(report *core.AdmissionReport) (string, error)
	FormatBackends(report *BackendReport) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown):
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

func verdictLabel(d core.Decision) string {
	if d.Allowed {
		return "allowed"
	}
	switch d.Reason {
	case core.DenyRateLimited:
		return "rate limited"
	case core.DenyReputation:
		return "denied"
	default:
		return "denied"
	}
}

func retryLabel(d core.Decision) string {
	if d.RetryAfter <= 0 {
		return "-"
	}
	return d.RetryAfter.String()
}

func healthLabel(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "down"
}

func latencyLabel(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.String()
}

func regionLabel(region string) string {
	if strings.TrimSpace(region) == "" {
		return "-"
	}
	return region
}

func healthyCount(backends []balance.TargetStatus) int {
	count := 0
	for _, b := range backends {
		if b.Healthy {
			count++
		}
	}
	return count
}
