package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagemarket/backend/internal/metrics"
	"github.com/engagemarket/backend/internal/services"
)

func testLog() (*logrus.Entry, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(logger), hook
}

type fakeRenewer struct {
	report services.RenewalReport
	err    error
	calls  int
}

func (f *fakeRenewer) RenewDue(context.Context) (services.RenewalReport, error) {
	f.calls++
	return f.report, f.err
}

type fakeExpirer struct {
	n        int
	err      error
	deadline bool
}

func (f *fakeExpirer) ExpireOverdue(ctx context.Context) (int, error) {
	_, f.deadline = ctx.Deadline()
	return f.n, f.err
}

func TestScheduler_Run(t *testing.T) {
	t.Run("success is recorded", func(t *testing.T) {
		log, hook := testLog()
		s := NewScheduler(log, time.Second)

		renewer := &fakeRenewer{report: services.RenewalReport{Renewed: 3, Paused: 1}}
		require.NoError(t, s.Run(RenewalJob, RenewalTask(renewer, log)))

		assert.Equal(t, 1, renewer.calls)
		var messages []string
		for _, e := range hook.AllEntries() {
			messages = append(messages, e.Message)
		}
		assert.Contains(t, messages, "[JOBS] subscriptions renewed")
		assert.Contains(t, messages, "[JOBS] run completed")

		count, err := testutil.GatherAndCount(metrics.Registry, "engagemarket_jobs_runs_total")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, 1)
	})

	t.Run("failure is logged and returned", func(t *testing.T) {
		log, hook := testLog()
		s := NewScheduler(log, time.Second)

		expirer := &fakeExpirer{err: errors.New("db down")}
		err := s.Run(ExpiryJob, ExpiryTask(expirer, log))

		assert.EqualError(t, err, "db down")
		assert.True(t, expirer.deadline)
		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
		assert.Equal(t, ExpiryJob, hook.LastEntry().Data["job"])
	})

	t.Run("quiet runs log nothing at info", func(t *testing.T) {
		log, hook := testLog()
		s := NewScheduler(log, time.Second)

		require.NoError(t, s.Run(ExpiryJob, ExpiryTask(&fakeExpirer{}, log)))
		for _, e := range hook.AllEntries() {
			assert.NotEqual(t, logrus.InfoLevel, e.Level, e.Message)
		}
	})
}

func TestScheduler_Add(t *testing.T) {
	log, _ := testLog()
	s := NewScheduler(log, time.Second)

	assert.NoError(t, s.Add(RenewalJob, "@every 1h", func(context.Context) error { return nil }))
	assert.Error(t, s.Add(ExpiryJob, "not a schedule", func(context.Context) error { return nil }))
}

func TestScheduler_StartStop(t *testing.T) {
	log, _ := testLog()
	s := NewScheduler(log, time.Second)

	ran := make(chan struct{}, 1)
	require.NoError(t, s.Add("tick", "@every 1s", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))

	s.Start()
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
