package services

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"

	"github.com/engagemarket/backend/internal/notify"
)

type MockAuditLogger struct {
	mock.Mock
}

func (m *MockAuditLogger) LogMovement(reference, userID, bucket, entryType string, amount, balanceAfter int64) {
	m.Called(reference, userID, bucket, entryType, amount, balanceAfter)
}

func (m *MockAuditLogger) LogTransition(contractID, actorID, from, to string) {
	m.Called(contractID, actorID, from, to)
}

func (m *MockAuditLogger) LogError(reference, userID string, err error) {
	m.Called(reference, userID, err)
}

// recordingEmitter keeps emitted events synchronously.
type recordingEmitter struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingEmitter) Emit(events ...notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *recordingEmitter) types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recordingEmitter) forRecipient(userID string) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, ev := range r.events {
		if ev.RecipientID == userID {
			out = append(out, ev)
		}
	}
	return out
}

type MockProofStore struct {
	mock.Mock
}

func (m *MockProofStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	args := m.Called(ctx, key, contentType, data)
	return args.Error(0)
}

func (m *MockProofStore) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return io.NopCloser(bytes.NewReader(args.Get(0).([]byte))), args.String(1), args.Error(2)
}

func (m *MockProofStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func bg() context.Context {
	return context.Background()
}

// nullLog returns a logger that discards output and records entries.
func nullLog() (*logrus.Entry, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return logrus.NewEntry(logger), hook
}
