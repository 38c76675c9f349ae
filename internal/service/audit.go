package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// audit appends an audit event inside the caller's transaction, so it
// commits or rolls back together with the change it describes.
func audit(ctx context.Context, store AuditStore, userID uuid.UUID, action, entity string, entityID uuid.UUID, meta map[string]any) error {
	var raw []byte
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal audit meta: %w", err)
		}
		raw = b
	}
	if err := store.CreateAuditEvent(ctx, database.CreateAuditEventParams{
		UserID:   pgUUID(userID),
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     raw,
	}); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

func pgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
