package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestHandleRetriesUntilSuccess(t *testing.T) {
	c := &Consumer{logger: quiet(), backoff: time.Millisecond}
	calls := 0
	h := func(context.Context, kafka.Message) error {
		calls++
		if calls < 3 {
			return errors.New("db down")
		}
		return nil
	}

	ok := c.handle(context.Background(), h, kafka.Message{Topic: "t", Offset: 7})
	assert.True(t, ok)
	assert.Equal(t, 3, calls, "a failed message is retried, never skipped")
}

func TestHandleGivesUpOnShutdown(t *testing.T) {
	c := &Consumer{logger: quiet(), backoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	h := func(context.Context, kafka.Message) error {
		calls++
		cancel()
		return errors.New("db down")
	}

	ok := c.handle(ctx, h, kafka.Message{Topic: "t", Offset: 7})
	assert.False(t, ok, "the offset must stay uncommitted")
	assert.Equal(t, 1, calls)
}
