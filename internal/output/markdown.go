package output

import (
	"fmt"
	"strings"

	"github.com/brendadeeznuts1111/warden/internal/core"
)

// MarkdownFormatter renders results as a markdown table.
type MarkdownFormatter struct{}

// FormatReport renders an admission report as Markdown.
func (f *MarkdownFormatter) FormatReport(report *core.AdmissionReport) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s admission\n\n", escapeMarkdownCell(report.ClientID)))
	sb.WriteString("| # | Verdict | Remaining | Retry After |\n")
	sb.WriteString("|---|---------|-----------|-------------|\n")

	for i, d := range report.Decisions {
		sb.WriteString(fmt.Sprintf("| %d | %s | %d | %s |\n",
			i+1,
			escapeMarkdownCell(verdictLabel(d)),
			d.Remaining,
			escapeMarkdownCell(retryLabel(d)),
		))
	}

	if len(report.Decisions) > 0 {
		sb.WriteString(fmt.Sprintf("\n**Admitted**: %d/%d\n", report.Allowed, len(report.Decisions)))
	}

	return sb.String(), nil
}

// FormatBackends renders backend status rows as Markdown.
func (f *MarkdownFormatter) FormatBackends(report *BackendReport) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Backend pool (%s)\n\n", escapeMarkdownCell(report.Strategy)))
	sb.WriteString("| ID | URL | Region | Health | Weight | In-Flight | Probe |\n")
	sb.WriteString("|----|-----|--------|--------|--------|-----------|-------|\n")

	for _, b := range report.Backends {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %.1f | %d | %s |\n",
			escapeMarkdownCell(b.ID),
			escapeMarkdownCell(b.URL),
			escapeMarkdownCell(regionLabel(b.Region)),
			healthLabel(b.Healthy),
			b.Weight,
			b.InFlight,
			escapeMarkdownCell(latencyLabel(b.ProbeLatency)),
		))
	}

	if len(report.Backends) > 0 {
		sb.WriteString(fmt.Sprintf("\n**Healthy**: %d/%d\n", healthyCount(report.Backends), len(report.Backends)))
	}

	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
