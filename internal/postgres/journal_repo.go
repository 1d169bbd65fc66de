package postgres

import (
	"context"
	"fmt"

	"github.com/cwrk-planet/coop-relay/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// JournalRepository — append-only журнал событий сессий.
// Комнаты из него не восстанавливаются.
type JournalRepository struct {
	db *pgxpool.Pool
}

func NewJournalRepository(db *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{db: db}
}

func (r *JournalRepository) Append(ctx context.Context, ev domain.SessionEvent) error {
	query := `
		INSERT INTO session_events (kind, room, client_id, name, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.Exec(ctx, query, ev.Kind, ev.Room, string(ev.ClientID), ev.Name, ev.At); err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}
	return nil
}

// History возвращает события комнаты, новые первыми, с курсорной пагинацией.
func (r *JournalRepository) History(ctx context.Context, room, cursor string, limit int) ([]domain.SessionEvent, string, error) {
	limit = clampLimit(limit)

	cur, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	query := `
		SELECT id, kind, room, client_id, name, created_at
		FROM session_events
		WHERE room = $1
		  AND ($2::timestamptz IS NULL OR created_at < $2
		       OR (created_at = $2 AND id < $3))
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	var at, id any
	if cur != nil {
		at, id = cur.At, cur.ID
	}

	rows, err := r.db.Query(ctx, query, room, at, id, limit)
	if err != nil {
		return nil, "", fmt.Errorf("query session events: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SessionEvent, error) {
		var ev domain.SessionEvent
		var clientID string
		err := row.Scan(&ev.ID, &ev.Kind, &ev.Room, &clientID, &ev.Name, &ev.At)
		ev.ClientID = domain.ClientID(clientID)
		return ev, err
	})
	if err != nil {
		return nil, "", fmt.Errorf("scan session events: %w", err)
	}

	var next string
	if len(events) == limit {
		last := events[len(events)-1]
		next, _ = EncodeCursor(Cursor{At: last.At, ID: last.ID})
	}
	return events, next, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
