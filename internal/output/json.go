package output

import (
	"encoding/json"

	"github.com/brendadeeznuts1111/warden/internal/core"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatReport renders an admission report as JSON.
func (f *JSONFormatter) FormatReport(report *core.AdmissionReport) (string, error) {
	if report == nil {
		return "", nil
	}
	return f.marshal(report)
}

// FormatBackends renders backend status rows as JSON.
func (f *JSONFormatter) FormatBackends(report *BackendReport) (string, error) {
	if report == nil {
		return "", nil
	}
	return f.marshal(report)
}

func (f *JSONFormatter) marshal(value any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
