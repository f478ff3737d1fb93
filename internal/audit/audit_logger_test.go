package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAudit() (*AuditLogger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	a := NewAuditLogger(logrus.NewEntry(logger))
	a.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return a, hook
}

func TestAuditLogger_LogMovement(t *testing.T) {
	a, hook := newTestAudit()

	a.LogMovement("ctr-1", "user-1", "available", "DEBIT", 400, 9600)

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "LEDGER_DEBIT", entry.Data["event_type"])
	assert.Equal(t, "user-1", entry.Data["user_id"])
	assert.Equal(t, "ctr-1", entry.Data["reference"])
	assert.Equal(t, int64(400), entry.Data["amount"])
	assert.Equal(t, "2026-01-02T03:04:05Z", entry.Data["at"])
}

func TestAuditLogger_LogTransition(t *testing.T) {
	a, hook := newTestAudit()

	a.LogTransition("c-9", "seller-1", "pending", "accepted")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "CONTRACT_TRANSITION", entry.Data["event_type"])
	assert.Equal(t, "c-9", entry.Data["contract_id"])
	assert.Equal(t, map[string]string{"from": "pending", "to": "accepted"}, entry.Data["details"])
}

func TestAuditLogger_LogError(t *testing.T) {
	a, hook := newTestAudit()

	a.LogError("wd-1", "user-2", errors.New("insufficient funds"))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "FAILED", entry.Data["status"])
}
