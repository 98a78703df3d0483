package ports

import (
	"context"

	"github.com/stackpoint/account-service/internal/core/domain"
)

// AuditRecorder accepts audit events as a write-only side effect. Record
// must never block or fail the triggering mutation.
type AuditRecorder interface {
	Record(event domain.AuditEvent)
}

// AuditSink is the persistence end of the recorder pipeline.
type AuditSink interface {
	Write(ctx context.Context, event domain.AuditEvent) error
}
