package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-housing-allocation/internal/housing"
	kafkax "github.com/ariefcatur/go-housing-allocation/internal/kafka"
	"github.com/ariefcatur/go-housing-allocation/internal/metrics"
	"github.com/ariefcatur/go-housing-allocation/internal/redisx"
)

type fakeCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string]string{}} }

func (c *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = value
	return true, nil
}

func (c *fakeCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

type fakeAudit struct {
	events []housing.Envelope
	err    error
}

func (a *fakeAudit) RecordEvent(_ context.Context, ev housing.Envelope) error {
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, ev)
	return nil
}

func bookingMessage(t *testing.T, eventID string) kafkago.Message {
	t.Helper()
	available := 2
	payload := housing.ApplicationChangedPayload{
		Application: housing.Application{
			ID:          "app-1",
			ApplicantID: "S1234567A",
			Project:     "Acacia",
			UnitType:    housing.TwoRoom,
			Status:      housing.StatusBooked,
		},
		PriorStatus: housing.StatusSuccessful,
		Available:   &available,
	}
	env := housing.Envelope{
		EventID:       eventID,
		EventType:     housing.EventBookingConfirmed,
		EventVersion:  1,
		OccurredAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Producer:      "housing-api",
		CorrelationID: "S1234567A",
		Payload:       kafkax.MustMarshal(payload),
	}
	return kafkago.Message{Topic: housing.TopicApplicationEvents, Value: kafkax.MustMarshal(env)}
}

func TestHandleEventProjectsApplication(t *testing.T) {
	cache := newFakeCache()
	audit := &fakeAudit{}
	m := metrics.New(prometheus.NewRegistry())
	svc := &Service{Audit: audit, Cache: cache, ServiceName: "projector", Metrics: m}

	require.NoError(t, svc.HandleEvent(context.Background(), bookingMessage(t, "ev-1")))

	require.Len(t, audit.events, 1)
	assert.Equal(t, "ev-1", audit.events[0].EventID)

	raw, ok := cache.data[fmt.Sprintf(redisx.KeyApplicationStatus, "S1234567A")]
	require.True(t, ok)
	var got housing.Application
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, housing.StatusBooked, got.Status)

	// Only the dedup marker and the application record are written.
	assert.Len(t, cache.data, 2)
	assert.Contains(t, cache.data, fmt.Sprintf(redisx.KeyDedup, "projector", "ev-1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsConsumed.WithLabelValues(housing.EventBookingConfirmed)))
}

func TestHandleEventSkipsDuplicates(t *testing.T) {
	cache := newFakeCache()
	audit := &fakeAudit{}
	svc := &Service{Audit: audit, Cache: cache, ServiceName: "projector"}

	msg := bookingMessage(t, "ev-1")
	require.NoError(t, svc.HandleEvent(context.Background(), msg))
	require.NoError(t, svc.HandleEvent(context.Background(), msg))

	assert.Len(t, audit.events, 1)
}

func TestHandleEventReleasesDedupOnFailure(t *testing.T) {
	cache := newFakeCache()
	audit := &fakeAudit{err: errors.New("db down")}
	svc := &Service{Audit: audit, Cache: cache, ServiceName: "projector"}

	msg := bookingMessage(t, "ev-1")
	require.Error(t, svc.HandleEvent(context.Background(), msg))
	_, held := cache.data[fmt.Sprintf(redisx.KeyDedup, "projector", "ev-1")]
	assert.False(t, held)

	audit.err = nil
	require.NoError(t, svc.HandleEvent(context.Background(), msg))
	assert.Len(t, audit.events, 1)
}

func TestHandleEventDropsUndecodable(t *testing.T) {
	audit := &fakeAudit{}
	svc := &Service{Audit: audit, Cache: newFakeCache(), ServiceName: "projector"}

	err := svc.HandleEvent(context.Background(), kafkago.Message{Value: []byte("{not json")})
	require.NoError(t, err)
	assert.Empty(t, audit.events)
}
