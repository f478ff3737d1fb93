package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/engagemarket/backend/internal/metrics"
)

// ErrNoLiveFeed is returned by feeds that cannot stream events.
var ErrNoLiveFeed = errors.New("live notifications unavailable")

// Publisher delivers a single event.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Feed serves stored and live events to clients.
type Feed interface {
	List(ctx context.Context, userID string, limit int64) ([]Event, error)
	Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error)
}

// Emitter is what domain services depend on.
type Emitter interface {
	Emit(events ...Event)
}

// Dispatcher publishes events in the background so that a slow or failing
// publisher never blocks or fails the caller.
type Dispatcher struct {
	pub     Publisher
	log     *logrus.Entry
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(pub Publisher, log *logrus.Entry, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{pub: pub, log: log, timeout: timeout}
}

// Emit hands events to the publisher and returns immediately.
func (d *Dispatcher) Emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for _, ev := range events {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			err := d.pub.Publish(ctx, ev)
			cancel()

			metrics.RecordNotification(string(ev.Type), err)
			if err != nil {
				d.log.WithError(err).
					WithField("event_type", ev.Type).
					WithField("recipient_id", ev.RecipientID).
					Warn("[NOTIFY] publish failed")
			}
		}
	}()
}

// Wait blocks until every emitted event has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(...Event) {}
