package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store writes events into audit_logs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a new Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Record persists the event.
func (s *Store) Record(ctx context.Context, event Event) error {
	if s == nil || s.pool == nil {
		return errors.New("audit: store not initialised")
	}
	if event.Action == "" || event.Entity == "" || event.EntityID == "" {
		return errors.New("audit: event requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(event.Meta)
	if err != nil {
		return err
	}
	occurredAt := event.At
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_logs (event_id, tenant_id, actor_id, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING`,
		event.ID, event.TenantID, event.ActorID, event.Action, event.Entity, event.EntityID, metaJSON, occurredAt)
	if err != nil {
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}
