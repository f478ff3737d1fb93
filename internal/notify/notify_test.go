package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedEvent() Event {
	return Event{
		ID:          "ev-1",
		Type:        FundsAdded,
		RecipientID: "user-1",
		Data:        map[string]any{"amount": 1000},
		CreatedAt:   time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestRedisPublisher_Publish(t *testing.T) {
	client, mock := redismock.NewClientMock()
	log, _ := test.NewNullLogger()
	pub := NewRedisPublisher(client, 50, 72*time.Hour, logrus.NewEntry(log))

	ev := fixedEvent()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	payload := string(data)

	mock.ExpectLPush("notifications:user-1", payload).SetVal(1)
	mock.ExpectLTrim("notifications:user-1", 0, 49).SetVal("OK")
	mock.ExpectExpire("notifications:user-1", 72*time.Hour).SetVal(true)
	mock.ExpectPublish("notifications:user-1:live", payload).SetVal(1)

	assert.NoError(t, pub.Publish(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisher_PublishError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	log, _ := test.NewNullLogger()
	pub := NewRedisPublisher(client, 50, 0, logrus.NewEntry(log))

	ev := fixedEvent()
	data, _ := json.Marshal(ev)

	mock.ExpectLPush("notifications:user-1", string(data)).SetErr(errors.New("connection refused"))

	err := pub.Publish(context.Background(), ev)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "push notification")
}

func TestRedisPublisher_List(t *testing.T) {
	client, mock := redismock.NewClientMock()
	log, hook := test.NewNullLogger()
	pub := NewRedisPublisher(client, 100, time.Hour, logrus.NewEntry(log))

	data, _ := json.Marshal(fixedEvent())
	mock.ExpectLRange("notifications:user-1", 0, 9).SetVal([]string{string(data), "{not json"})

	events, err := pub.List(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-1", events[0].ID)
	assert.Equal(t, FundsAdded, events[0].Type)
	assert.Len(t, hook.Entries, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
	block  chan struct{}
}

func (p *recordingPublisher) Publish(ctx context.Context, ev Event) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func TestDispatcher_EmitDoesNotBlock(t *testing.T) {
	log, _ := test.NewNullLogger()
	pub := &recordingPublisher{block: make(chan struct{})}
	d := NewDispatcher(pub, logrus.NewEntry(log), time.Second)

	done := make(chan struct{})
	go func() {
		d.Emit(NewEvent(FundsDebited, "buyer-1", nil), NewEvent(ProposalReceived, "seller-1", nil))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a stalled publisher")
	}

	close(pub.block)
	d.Wait()
	assert.Len(t, pub.events, 2)
	assert.Equal(t, FundsDebited, pub.events[0].Type)
}

func TestDispatcher_PublishErrorIsLogged(t *testing.T) {
	log, hook := test.NewNullLogger()
	pub := &recordingPublisher{err: errors.New("redis down")}
	d := NewDispatcher(pub, logrus.NewEntry(log), time.Second)

	d.Emit(NewEvent(EarningsReceived, "seller-1", map[string]any{"amount": 400}))
	d.Wait()

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "seller-1", hook.LastEntry().Data["recipient_id"])
}

func TestLogPublisher(t *testing.T) {
	log, hook := test.NewNullLogger()
	pub := NewLogPublisher(logrus.NewEntry(log))

	require.NoError(t, pub.Publish(context.Background(), fixedEvent()))
	assert.Equal(t, "[NOTIFY] event", hook.LastEntry().Message)

	events, err := pub.List(context.Background(), "user-1", 10)
	assert.NoError(t, err)
	assert.Empty(t, events)

	_, _, err = pub.Subscribe(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrNoLiveFeed)
}
