package models

import "time"

// MSessionReport summarizes one streaming call for health reporting and API responses.
type MSessionReport struct {
	SessionID  string        `json:"session_id"`
	Symbol     string        `json:"symbol"`
	EventType  string        `json:"event_type"`
	FinalPhase string        `json:"final_phase"`
	Completion string        `json:"completion"`
	Records    int           `json:"records"`
	Skipped    int           `json:"skipped"`
	Elapsed    time.Duration `json:"elapsed"`
	Error      string        `json:"error,omitempty"`
}
