package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogPublisher only logs events. It is used when Redis is unavailable.
type LogPublisher struct {
	log *logrus.Entry
}

func NewLogPublisher(log *logrus.Entry) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.log.WithFields(logrus.Fields{
		"event_id":     ev.ID,
		"event_type":   ev.Type,
		"recipient_id": ev.RecipientID,
		"data":         ev.Data,
	}).Info("[NOTIFY] event")
	return nil
}

func (p *LogPublisher) List(context.Context, string, int64) ([]Event, error) {
	return []Event{}, nil
}

func (p *LogPublisher) Subscribe(context.Context, string) (<-chan Event, func(), error) {
	return nil, nil, ErrNoLiveFeed
}
