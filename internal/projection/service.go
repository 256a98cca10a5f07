package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-housing-allocation/internal/housing"
	kafkax "github.com/ariefcatur/go-housing-allocation/internal/kafka"
	"github.com/ariefcatur/go-housing-allocation/internal/metrics"
	"github.com/ariefcatur/go-housing-allocation/internal/redisx"
)

type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

type AuditStore interface {
	RecordEvent(ctx context.Context, ev housing.Envelope) error
}

// Service consumes allocation events: it appends each one to the audit log
// once and keeps the application cache the API reads from.
type Service struct {
	Audit       AuditStore
	Cache       Cache
	ServiceName string
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// HandleEvent is installed as the consumer handler.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env housing.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		// A poison message is logged and committed; retrying cannot fix it.
		s.logger().Error("undecodable event dropped", "topic", m.Topic, "offset", m.Offset, "error", err)
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	fresh, err := s.Cache.SetNX(ctx, dkey, "1", redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !fresh {
		return nil
	}

	if err := s.apply(ctx, env); err != nil {
		_ = s.Cache.Del(ctx, dkey)
		return err
	}
	if s.Metrics != nil {
		s.Metrics.EventsConsumed.WithLabelValues(env.EventType).Inc()
	}
	return nil
}

func (s *Service) apply(ctx context.Context, env housing.Envelope) error {
	if err := s.Audit.RecordEvent(ctx, env); err != nil {
		return fmt.Errorf("record event %s: %w", env.EventID, err)
	}

	switch env.EventType {
	case housing.EventApplicationSubmitted, housing.EventApplicationDecided, housing.EventBookingRequested,
		housing.EventBookingConfirmed, housing.EventWithdrawalRequested, housing.EventWithdrawalDecided:
		p, err := kafkax.UnwrapPayload[housing.ApplicationChangedPayload](env.Payload)
		if err != nil {
			return err
		}
		b, err := json.Marshal(p.Application)
		if err != nil {
			return err
		}
		key := fmt.Sprintf(redisx.KeyApplicationStatus, p.Application.ApplicantID)
		if err := s.Cache.Set(ctx, key, string(b), redisx.TTLStatusCache); err != nil {
			return err
		}
	case housing.EventOfficerRequested, housing.EventOfficerDecided:
		// audit only
	default:
		s.logger().Warn("unknown event type", "event_type", env.EventType, "event_id", env.EventID)
	}
	return nil
}
