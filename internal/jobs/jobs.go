package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/engagemarket/backend/internal/metrics"
	"github.com/engagemarket/backend/internal/services"
)

const (
	RenewalJob = "subscription_renewal"
	ExpiryJob  = "contract_expiry"
)

// Renewer charges monthly subscriptions that are due.
type Renewer interface {
	RenewDue(ctx context.Context) (services.RenewalReport, error)
}

// Expirer settles contracts whose delivery or validation window ran out.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// Scheduler runs the periodic marketplace jobs. A run that is still going
// when its next tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	log     *logrus.Entry
	timeout time.Duration
}

func NewScheduler(log *logrus.Entry, timeout time.Duration) *Scheduler {
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     log,
		timeout: timeout,
	}
}

// Add registers fn under name on a cron spec such as "@every 5m".
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() { s.Run(name, fn) })
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"job": name, "schedule": spec}).Info("[JOBS] scheduled")
	return nil
}

// Run executes one job immediately with the scheduler's timeout and records
// its outcome.
func (s *Scheduler) Run(name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	metrics.RecordJobRun(name, elapsed, err == nil)

	entry := s.log.WithFields(logrus.Fields{"job": name, "duration": elapsed.String()})
	if err != nil {
		entry.WithError(err).Error("[JOBS] run failed")
		return err
	}
	entry.Debug("[JOBS] run completed")
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running ones until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("[JOBS] shutdown timed out with jobs still running")
	}
}

// RenewalTask adapts a Renewer to a job function.
func RenewalTask(r Renewer, log *logrus.Entry) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		report, err := r.RenewDue(ctx)
		if err != nil {
			return err
		}
		if report.Renewed+report.Paused+report.Failed > 0 {
			log.WithFields(logrus.Fields{
				"renewed": report.Renewed,
				"paused":  report.Paused,
				"failed":  report.Failed,
			}).Info("[JOBS] subscriptions renewed")
		}
		return nil
	}
}

// ExpiryTask adapts an Expirer to a job function.
func ExpiryTask(e Expirer, log *logrus.Entry) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		n, err := e.ExpireOverdue(ctx)
		if n > 0 {
			log.WithField("expired", n).Info("[JOBS] overdue contracts settled")
		}
		return err
	}
}

// cronLogger routes cron's own messages through logrus.
type cronLogger struct {
	log *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug("[JOBS] " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).WithError(err).Error("[JOBS] " + msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}
