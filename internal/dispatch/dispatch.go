// Package dispatch validates and executes model-issued function calls
// against the business collaborators. Failures are returned to the model
// as structured results, never raised as session-fatal errors.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Function names the model may invoke.
const (
	FuncCaptureLead       = "capture_lead"
	FuncBookAppointment   = "book_appointment"
	FuncCheckAvailability = "check_availability"
	FuncTransferCall      = "transfer_call"
)

// Result error codes returned to the model.
const (
	ErrCodeValidation = "validation_error"
	ErrCodeExecution  = "execution_error"
	ErrCodeUnknown    = "unknown_function"
	ErrCodeDuplicate  = "duplicate_invocation"
)

// Invocation is one model-issued function call.
type Invocation struct {
	ID        string
	Name      string
	Args      json.RawMessage
	Timestamp time.Time
}

// TransferRequest asks the session to hand the call to a human.
type TransferRequest struct {
	Reason string
	Target string // phone number or extension; empty means org default
}

// Result is the structured outcome returned into the model context. Exactly
// one Result is produced per invocation, success or error.
type Result struct {
	InvocationID string         `json:"invocation_id"`
	Name         string         `json:"name"`
	OK           bool           `json:"ok"`
	Payload      map[string]any `json:"payload,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`

	// Transfer is set only for a successful transfer_call; it is the one
	// result that forces a session state transition.
	Transfer *TransferRequest `json:"-"`
}

// Lead is the payload persisted by capture_lead.
type Lead struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Reason  string `json:"reason"`
	Email   string `json:"email,omitempty"`
	Urgency string `json:"urgency,omitempty"`
}

// Appointment is the payload persisted by book_appointment.
type Appointment struct {
	Date            string `json:"date"` // YYYY-MM-DD
	Time            string `json:"time"` // HH:MM, 24h
	Purpose         string `json:"purpose"`
	DurationMinutes int    `json:"duration,omitempty"`
}

// LeadStore persists captured leads.
type LeadStore interface {
	CreateLead(ctx context.Context, orgID int64, callID string, lead Lead) (int64, error)
}

// Calendar persists bookings and answers availability queries.
type Calendar interface {
	CreateAppointment(ctx context.Context, orgID int64, callID string, appt Appointment) (int64, error)
	Availability(ctx context.Context, orgID int64, date string) ([]string, error)
}

// CRMEnqueuer schedules a background CRM sync for a persisted lead.
// Enqueue failures are deliberately invisible to the caller: the lead is
// already stored and sync is retried by the worker.
type CRMEnqueuer interface {
	EnqueueLeadSync(leadID int64)
}

// Dispatcher executes function calls for one session. Invocation ids are
// tracked so each id executes at most once.
type Dispatcher struct {
	orgID    int64
	callID   string
	leads    LeadStore
	calendar Calendar
	crm      CRMEnqueuer
	logger   *slog.Logger

	mu   sync.Mutex
	seen map[string]bool
}

// New creates a dispatcher bound to one call. crm may be nil when CRM sync
// is not configured for the organization.
func New(orgID int64, callID string, leads LeadStore, calendar Calendar, crm CRMEnqueuer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		orgID:    orgID,
		callID:   callID,
		leads:    leads,
		calendar: calendar,
		crm:      crm,
		logger:   logger.With("subsystem", "dispatch", "call_id", callID),
		seen:     make(map[string]bool),
	}
}

// Dispatch validates and executes one invocation, returning exactly one
// structured result.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) Result {
	d.mu.Lock()
	if d.seen[inv.ID] {
		d.mu.Unlock()
		d.logger.Warn("duplicate invocation id", "invocation_id", inv.ID, "function", inv.Name)
		return errResult(inv, ErrCodeDuplicate, "invocation id already executed")
	}
	d.seen[inv.ID] = true
	d.mu.Unlock()

	start := time.Now()
	var res Result
	switch inv.Name {
	case FuncCaptureLead:
		res = d.captureLead(ctx, inv)
	case FuncBookAppointment:
		res = d.bookAppointment(ctx, inv)
	case FuncCheckAvailability:
		res = d.checkAvailability(ctx, inv)
	case FuncTransferCall:
		res = d.transferCall(inv)
	default:
		res = errResult(inv, ErrCodeUnknown, fmt.Sprintf("unknown function %q", inv.Name))
	}

	d.logger.Info("function dispatched",
		"function", inv.Name,
		"invocation_id", inv.ID,
		"ok", res.OK,
		"error_code", res.ErrorCode,
		"duration", time.Since(start),
	)
	return res
}

func (d *Dispatcher) captureLead(ctx context.Context, inv Invocation) Result {
	var lead Lead
	if err := json.Unmarshal(inv.Args, &lead); err != nil {
		return errResult(inv, ErrCodeValidation, "arguments are not a valid object")
	}
	if msg := validateLead(lead); msg != "" {
		return errResult(inv, ErrCodeValidation, msg)
	}

	id, err := d.leads.CreateLead(ctx, d.orgID, d.callID, lead)
	if err != nil {
		d.logger.Error("lead persistence failed", "error", err)
		return errResult(inv, ErrCodeExecution, "could not save the lead, please apologize and offer to try again")
	}
	if d.crm != nil {
		d.crm.EnqueueLeadSync(id)
	}
	return okResult(inv, map[string]any{"lead_id": id, "status": "captured"})
}

func (d *Dispatcher) bookAppointment(ctx context.Context, inv Invocation) Result {
	var appt Appointment
	if err := json.Unmarshal(inv.Args, &appt); err != nil {
		return errResult(inv, ErrCodeValidation, "arguments are not a valid object")
	}
	if msg := validateAppointment(appt); msg != "" {
		return errResult(inv, ErrCodeValidation, msg)
	}

	id, err := d.calendar.CreateAppointment(ctx, d.orgID, d.callID, appt)
	if err != nil {
		d.logger.Error("appointment persistence failed", "error", err)
		return errResult(inv, ErrCodeExecution, "could not book the appointment, the slot may be taken")
	}
	return okResult(inv, map[string]any{
		"appointment_id": id,
		"date":           appt.Date,
		"time":           appt.Time,
		"status":         "booked",
	})
}

func (d *Dispatcher) checkAvailability(ctx context.Context, inv Invocation) Result {
	var args struct {
		Date string `json:"date"`
	}
	if err := json.Unmarshal(inv.Args, &args); err != nil {
		return errResult(inv, ErrCodeValidation, "arguments are not a valid object")
	}
	if !validDate(args.Date) {
		return errResult(inv, ErrCodeValidation, "date is required in YYYY-MM-DD format")
	}

	slots, err := d.calendar.Availability(ctx, d.orgID, args.Date)
	if err != nil {
		d.logger.Error("availability lookup failed", "error", err)
		return errResult(inv, ErrCodeExecution, "could not check availability right now")
	}
	return okResult(inv, map[string]any{"date": args.Date, "open_slots": slots})
}

// transferCall only validates; the session performs the actual handoff to
// the routing collaborator when it enters the transferring state.
func (d *Dispatcher) transferCall(inv Invocation) Result {
	var args struct {
		Reason string `json:"reason"`
		Target string `json:"target"`
	}
	if err := json.Unmarshal(inv.Args, &args); err != nil {
		return errResult(inv, ErrCodeValidation, "arguments are not a valid object")
	}
	if strings.TrimSpace(args.Reason) == "" {
		return errResult(inv, ErrCodeValidation, "reason is required")
	}
	if args.Target != "" && !validPhone(args.Target) {
		return errResult(inv, ErrCodeValidation, "target must be a phone number")
	}

	res := okResult(inv, map[string]any{"status": "transferring"})
	res.Transfer = &TransferRequest{Reason: args.Reason, Target: args.Target}
	return res
}

func okResult(inv Invocation, payload map[string]any) Result {
	return Result{InvocationID: inv.ID, Name: inv.Name, OK: true, Payload: payload}
}

func errResult(inv Invocation, code, msg string) Result {
	return Result{InvocationID: inv.ID, Name: inv.Name, ErrorCode: code, ErrorMessage: msg}
}

var phoneRe = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

func validPhone(s string) bool {
	return phoneRe.MatchString(strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, s))
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func validTime(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}

var validUrgencies = map[string]bool{"": true, "low": true, "normal": true, "high": true, "emergency": true}

func validateLead(lead Lead) string {
	switch {
	case strings.TrimSpace(lead.Name) == "":
		return "name is required"
	case strings.TrimSpace(lead.Phone) == "":
		return "phone is required"
	case !validPhone(lead.Phone):
		return "phone must be a dialable number"
	case strings.TrimSpace(lead.Reason) == "":
		return "reason is required"
	case lead.Email != "" && !strings.Contains(lead.Email, "@"):
		return "email is not valid"
	case !validUrgencies[strings.ToLower(lead.Urgency)]:
		return "urgency must be one of low, normal, high, emergency"
	}
	return ""
}

func validateAppointment(appt Appointment) string {
	switch {
	case !validDate(appt.Date):
		return "date is required in YYYY-MM-DD format"
	case !validTime(appt.Time):
		return "time is required in HH:MM format"
	case strings.TrimSpace(appt.Purpose) == "":
		return "purpose is required"
	case appt.DurationMinutes < 0 || appt.DurationMinutes > 8*60:
		return "duration must be between 0 and 480 minutes"
	}
	return ""
}
