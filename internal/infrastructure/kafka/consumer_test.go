package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
)

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32 {
	return nil
}

func (s *fakeSession) MemberID() string {
	return "member-1"
}

func (s *fakeSession) GenerationID() int32 {
	return 1
}

func (s *fakeSession) MarkOffset(string, int32, int64, string) {}

func (s *fakeSession) Commit() {}

func (s *fakeSession) ResetOffset(string, int32, int64, string) {}

func (s *fakeSession) Context() context.Context {
	return s.ctx
}

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string {
	return "broadcast.commands"
}

func (c *fakeClaim) Partition() int32 {
	return 0
}

func (c *fakeClaim) InitialOffset() int64 {
	return 0
}

func (c *fakeClaim) HighWaterMarkOffset() int64 {
	return 0
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage {
	return c.messages
}

type handlerFunc func(ctx context.Context, cmd entities.Command) error

func (f handlerFunc) HandleCommand(ctx context.Context, cmd entities.Command) error {
	return f(ctx, cmd)
}

func claimOf(values ...string) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(values))
	for i, v := range values {
		ch <- &sarama.ConsumerMessage{Topic: "broadcast.commands", Offset: int64(i), Value: []byte(v)}
	}
	close(ch)
	return &fakeClaim{messages: ch}
}

func TestCommandConsumer_ConsumeClaim(t *testing.T) {
	var received []entities.Command
	handler := handlerFunc(func(_ context.Context, cmd entities.Command) error {
		received = append(received, cmd)
		return nil
	})

	c := newCommandConsumer(nil, []string{"broadcast.commands"}, handler, zerolog.Nop())
	session := &fakeSession{ctx: context.Background()}

	err := c.ConsumeClaim(session, claimOf(
		`{"request_id":"r1","action":"start","user_id":1,"account_id":10}`,
		`not json`,
		`{"request_id":"r2","action":"stop","user_id":1,"account_id":10}`,
	))
	require.NoError(t, err)

	require.Len(t, received, 2)
	assert.Equal(t, entities.CommandStart, received[0].Action)
	assert.Equal(t, int64(10), received[0].AccountID)
	assert.Equal(t, entities.CommandStop, received[1].Action)
	assert.Equal(t, []int64{0, 1, 2}, session.marked, "every message is committed, malformed ones included")
}

func TestCommandConsumer_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	handler := handlerFunc(func(context.Context, entities.Command) error {
		attempts++
		if attempts < 2 {
			return errors.New("database unavailable")
		}
		return nil
	})

	c := newCommandConsumer(nil, nil, handler, zerolog.Nop())
	session := &fakeSession{ctx: context.Background()}

	require.NoError(t, c.ConsumeClaim(session, claimOf(`{"action":"start","user_id":1,"account_id":10}`)))
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []int64{0}, session.marked)
}

func TestCommandConsumer_GivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	handler := handlerFunc(func(context.Context, entities.Command) error {
		attempts++
		return errors.New("database unavailable")
	})

	c := newCommandConsumer(nil, nil, handler, zerolog.Nop())
	session := &fakeSession{ctx: context.Background()}

	require.NoError(t, c.ConsumeClaim(session, claimOf(`{"action":"start","user_id":1,"account_id":10}`)))
	assert.Equal(t, maxRetries, attempts)
	assert.Equal(t, []int64{0}, session.marked)
}
