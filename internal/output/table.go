package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/brendadeeznuts1111/warden/internal/core"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatReport renders an admission report as a table.
func (f *TableFormatter) FormatReport(report *core.AdmissionReport) (string, error) {
	if report == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Verdict", "Remaining", "Retry After"})

	for i, d := range report.Decisions {
		t.AppendRow(table.Row{
			i + 1,
			verdictLabel(d),
			d.Remaining,
			retryLabel(d),
		})
	}

	if len(report.Decisions) > 0 {
		t.AppendFooter(table.Row{
			"",
			fmt.Sprintf("%d/%d allowed", report.Allowed, len(report.Decisions)),
			"",
			"",
		})
	}

	return t.Render(), nil
}

// FormatBackends renders backend status rows as a table.
func (f *TableFormatter) FormatBackends(report *BackendReport) (string, error) {
	if report == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "URL", "Region", "Health", "Weight", "In-Flight", "Probe"})

	for _, b := range report.Backends {
		t.AppendRow(table.Row{
			b.ID,
			b.URL,
			regionLabel(b.Region),
			healthLabel(b.Healthy),
			fmt.Sprintf("%.1f", b.Weight),
			b.InFlight,
			latencyLabel(b.ProbeLatency),
		})
	}

	if len(report.Backends) > 0 {
		t.AppendFooter(table.Row{
			"",
			"",
			"",
			fmt.Sprintf("%d/%d healthy", healthyCount(report.Backends), len(report.Backends)),
			"",
			"",
			"",
		})
	}

	return t.Render(), nil
}
