package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/stackpoint/account-service/internal/core/domain"
)

const collectionAuditEvents = "audit_events"

// AuditSink persists audit events. Write-only: nothing in this service
// reads them back.
type AuditSink struct {
	col *mongo.Collection
}

func NewAuditSink(db *mongo.Database) *AuditSink {
	return &AuditSink{col: db.Collection(collectionAuditEvents)}
}

type auditEventDoc struct {
	Action     string            `bson:"action"`
	ActorID    string            `bson:"actor_id,omitempty"`
	TargetType string            `bson:"target_type,omitempty"`
	TargetID   string            `bson:"target_id,omitempty"`
	Success    bool              `bson:"success"`
	Metadata   map[string]string `bson:"metadata,omitempty"`
	CreatedAt  int64             `bson:"created_at"`
}

func (s *AuditSink) Write(ctx context.Context, event domain.AuditEvent) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := auditEventDoc{
		Action:     event.Action,
		ActorID:    event.ActorID,
		TargetType: event.TargetType,
		TargetID:   event.TargetID,
		Success:    event.Success,
		Metadata:   event.Metadata,
		CreatedAt:  event.CreatedAt.Unix(),
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
