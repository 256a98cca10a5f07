package redisx

import "time"

const (
	// Idempotent apply: idem:application:apply:{idempotency_key} -> application json
	KeyIdemApply = "idem:application:apply:%s"

	// Cached application of an applicant: application:{applicant_id} -> application json
	KeyApplicationStatus = "application:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
