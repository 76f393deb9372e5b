// Package models defines the database record types.
package models

import (
	"fmt"
	"time"
)

// Organization holds the per-tenant voice configuration consumed at
// session start. It is read-only for the lifetime of a session.
type Organization struct {
	ID                 int64
	Name               string
	Greeting           string
	AfterHoursGreeting string
	SystemPrompt       string
	VoiceID            string
	// BusinessHours is "HH:MM-HH:MM" in the org's local day, empty for 24/7.
	BusinessHours  string
	TransferNumber string
	MaxCallSeconds int
	MaxTurns       int
	RetentionDays  int
	CreatedAt      time.Time
}

// OpenAt reports whether the organization accepts AI-handled calls at t,
// according to its business-hours window.
func (o *Organization) OpenAt(t time.Time) bool {
	if o.BusinessHours == "" {
		return true
	}
	var fromH, fromM, toH, toM int
	n, err := fmt.Sscanf(o.BusinessHours, "%d:%d-%d:%d", &fromH, &fromM, &toH, &toM)
	if err != nil || n != 4 {
		// Unparseable window fails open; a misconfigured org should not
		// lose calls.
		return true
	}
	minutes := t.Hour()*60 + t.Minute()
	from := fromH*60 + fromM
	to := toH*60 + toM
	if from <= to {
		return minutes >= from && minutes < to
	}
	// Overnight window, e.g. 20:00-06:00.
	return minutes >= from || minutes < to
}

// Lead is a caller's captured contact record.
type Lead struct {
	ID        int64
	OrgID     int64
	CallID    string
	Name      string
	Phone     string
	Email     string
	Reason    string
	Urgency   string
	CRMSynced bool
	CreatedAt time.Time
}

// Appointment is a booking made during a call.
type Appointment struct {
	ID              int64
	OrgID           int64
	CallID          string
	Date            string // YYYY-MM-DD
	Time            string // HH:MM
	Purpose         string
	DurationMinutes int
	CreatedAt       time.Time
}

// CallRecord is the finished-call record: outcome, counters, and the
// finalized transcript as JSON.
type CallRecord struct {
	ID              int64
	CallID          string
	OrgID           int64
	FromNumber      string
	ToNumber        string
	Direction       string
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds int
	TurnCount       int
	Outcome         string
	Transcript      string // JSON array of transcript entries
	Summary         string
	Sentiment       string
}

// InboundNumber maps a provider phone number to an organization.
type InboundNumber struct {
	ID        int64
	OrgID     int64
	Number    string
	CreatedAt time.Time
}
