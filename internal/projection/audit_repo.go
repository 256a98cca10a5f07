package projection

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-housing-allocation/internal/housing"
)

// AuditRepo appends events to allocation_events. Replays are ignored.
type AuditRepo struct{ DB *pgxpool.Pool }

func (r *AuditRepo) RecordEvent(ctx context.Context, ev housing.Envelope) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO allocation_events(event_id, event_type, correlation_id, producer, payload, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (event_id) DO NOTHING`,
		ev.EventID, ev.EventType, ev.CorrelationID, ev.Producer, []byte(ev.Payload), ev.OccurredAt)
	return err
}
