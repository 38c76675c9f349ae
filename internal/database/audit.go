package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createAuditEvent = `INSERT INTO audit_events (user_id, action, entity, entity_id, meta)
VALUES ($1, $2, $3, $4, $5)`

type CreateAuditEventParams struct {
	UserID   pgtype.UUID
	Action   string
	Entity   string
	EntityID uuid.UUID
	Meta     []byte
}

func (q *Queries) CreateAuditEvent(ctx context.Context, arg CreateAuditEventParams) error {
	_, err := q.db.Exec(ctx, createAuditEvent, arg.UserID, arg.Action, arg.Entity, arg.EntityID, arg.Meta)
	return err
}
