package audit

import (
	"time"

	"github.com/sirupsen/logrus"
)

type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"event_type"`
	Reference  string    `json:"reference"`
	UserID     string    `json:"user_id"`
	ContractID string    `json:"contract_id,omitempty"`
	Amount     int64     `json:"amount"`
	Status     string    `json:"status"`
	Details    any       `json:"details,omitempty"`
}

// Logger is the audit sink used by services.
type Logger interface {
	LogMovement(reference, userID, bucket, entryType string, amount, balanceAfter int64)
	LogTransition(contractID, actorID, from, to string)
	LogError(reference, userID string, err error)
}

type AuditLogger struct {
	log *logrus.Entry
	now func() time.Time
}

func NewAuditLogger(log *logrus.Entry) *AuditLogger {
	return &AuditLogger{log: log, now: time.Now}
}

func (a *AuditLogger) LogMovement(reference, userID, bucket, entryType string, amount, balanceAfter int64) {
	a.write(Event{
		Timestamp: a.now(),
		EventType: "LEDGER_" + entryType,
		Reference: reference,
		UserID:    userID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details: map[string]any{
			"bucket":        bucket,
			"balance_after": balanceAfter,
		},
	})
}

func (a *AuditLogger) LogTransition(contractID, actorID, from, to string) {
	a.write(Event{
		Timestamp:  a.now(),
		EventType:  "CONTRACT_TRANSITION",
		UserID:     actorID,
		ContractID: contractID,
		Status:     "SUCCESS",
		Details:    map[string]string{"from": from, "to": to},
	})
}

func (a *AuditLogger) LogError(reference, userID string, err error) {
	a.write(Event{
		Timestamp: a.now(),
		EventType: "ERROR",
		Reference: reference,
		UserID:    userID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) write(event Event) {
	entry := a.log.WithFields(logrus.Fields{
		"audit":      true,
		"event_type": event.EventType,
		"user_id":    event.UserID,
		"status":     event.Status,
		"at":         event.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if event.Reference != "" {
		entry = entry.WithField("reference", event.Reference)
	}
	if event.ContractID != "" {
		entry = entry.WithField("contract_id", event.ContractID)
	}
	if event.Amount != 0 {
		entry = entry.WithField("amount", event.Amount)
	}
	if event.Details != nil {
		entry = entry.WithField("details", event.Details)
	}
	if event.Status == "FAILED" {
		entry.Warn("AUDIT")
		return
	}
	entry.Info("AUDIT")
}

// Nop discards audit events.
type Nop struct{}

func (Nop) LogMovement(string, string, string, string, int64, int64) {}
func (Nop) LogTransition(string, string, string, string)             {}
func (Nop) LogError(string, string, error)                           {}
