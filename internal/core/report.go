package core

import "time"

// AdmissionReport captures the outcome of a series of admission probes
// for one client identity.
type AdmissionReport struct {
	ClientID    string     `json:"client_id"`
	Decisions   []Decision `json:"decisions"`
	Allowed     int        `json:"allowed"`
	Denied      int        `json:"denied"`
	CompletedAt time.Time  `json:"completed_at"`
}

// Summarize builds a report from probe decisions, tallying the verdicts.
func Summarize(clientID string, decisions []Decision) *AdmissionReport {
	report := &AdmissionReport{
		ClientID:    clientID,
		Decisions:   decisions,
		CompletedAt: time.Now().UTC(),
	}
	for _, d := range decisions {
		if d.Allowed {
			report.Allowed++
		} else {
			report.Denied++
		}
	}
	return report
}
