package fsm

import "time"

const (
	DefaultDeliveryWindow   = 48 * time.Hour
	DefaultValidationWindow = 24 * time.Hour
)

// Windows holds the time a seller has to deliver after acceptance and the
// time a buyer has to confirm or dispute after delivery.
type Windows struct {
	Delivery   time.Duration
	Validation time.Duration
}

// DefaultWindows returns the 48h delivery / 24h validation windows.
func DefaultWindows() Windows {
	return Windows{Delivery: DefaultDeliveryWindow, Validation: DefaultValidationWindow}
}

// Deadline returns the end of the window running for a contract in status.
// Only accepted and delivered contracts have a running window.
func (w Windows) Deadline(status Status, acceptedAt, deliveredAt *time.Time) (time.Time, bool) {
	switch status {
	case StatusAccepted:
		if acceptedAt == nil {
			return time.Time{}, false
		}
		return acceptedAt.Add(w.Delivery), true
	case StatusDelivered:
		if deliveredAt == nil {
			return time.Time{}, false
		}
		return deliveredAt.Add(w.Validation), true
	}
	return time.Time{}, false
}

// Expired reports whether the running window ended before now.
func (w Windows) Expired(now time.Time, status Status, acceptedAt, deliveredAt *time.Time) bool {
	deadline, ok := w.Deadline(status, acceptedAt, deliveredAt)
	return ok && now.After(deadline)
}

// Remaining returns the time left in the running window, zero once expired.
func (w Windows) Remaining(now time.Time, status Status, acceptedAt, deliveredAt *time.Time) time.Duration {
	deadline, ok := w.Deadline(status, acceptedAt, deliveredAt)
	if !ok || !deadline.After(now) {
		return 0
	}
	return deadline.Sub(now)
}

// ExpiryCommand returns the system command applied when the window of a
// contract in status runs out.
func ExpiryCommand(status Status) (Command, bool) {
	switch status {
	case StatusAccepted:
		return CmdExpireDelivery, true
	case StatusDelivered:
		return CmdExpireValidation, true
	}
	return "", false
}
