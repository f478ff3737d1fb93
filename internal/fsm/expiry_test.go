package fsm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowsDeadline(t *testing.T) {
	w := DefaultWindows()
	accepted := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	delivered := accepted.Add(6 * time.Hour)

	deadline, ok := w.Deadline(StatusAccepted, &accepted, nil)
	assert.True(t, ok)
	assert.Equal(t, accepted.Add(48*time.Hour), deadline)

	deadline, ok = w.Deadline(StatusDelivered, &accepted, &delivered)
	assert.True(t, ok)
	assert.Equal(t, delivered.Add(24*time.Hour), deadline)

	_, ok = w.Deadline(StatusPending, nil, nil)
	assert.False(t, ok)

	_, ok = w.Deadline(StatusAccepted, nil, nil)
	assert.False(t, ok)
}

func TestWindowsExpired(t *testing.T) {
	w := DefaultWindows()
	accepted := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	assert.False(t, w.Expired(accepted.Add(47*time.Hour), StatusAccepted, &accepted, nil))
	assert.False(t, w.Expired(accepted.Add(48*time.Hour), StatusAccepted, &accepted, nil))
	assert.True(t, w.Expired(accepted.Add(48*time.Hour+time.Second), StatusAccepted, &accepted, nil))

	// completed contracts never expire
	assert.False(t, w.Expired(accepted.Add(100*time.Hour), StatusCompleted, &accepted, &accepted))
}

func TestWindowsRemaining(t *testing.T) {
	w := Windows{Delivery: time.Hour, Validation: 30 * time.Minute}
	delivered := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, 20*time.Minute, w.Remaining(delivered.Add(10*time.Minute), StatusDelivered, nil, &delivered))
	assert.Equal(t, time.Duration(0), w.Remaining(delivered.Add(time.Hour), StatusDelivered, nil, &delivered))
}

func TestExpiryCommand(t *testing.T) {
	cmd, ok := ExpiryCommand(StatusAccepted)
	assert.True(t, ok)
	assert.Equal(t, CmdExpireDelivery, cmd)

	cmd, ok = ExpiryCommand(StatusDelivered)
	assert.True(t, ok)
	assert.Equal(t, CmdExpireValidation, cmd)

	_, ok = ExpiryCommand(StatusDisputed)
	assert.False(t, ok)
}
