package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
)

// TurnRepository is the durable transcript of answered chat turns.
type TurnRepository struct {
	db *sql.DB
}

func NewTurnRepository(db *sql.DB) *TurnRepository {
	return &TurnRepository{db: db}
}

func (r *TurnRepository) AppendTurn(ctx context.Context, turn domain.ArchivedTurn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO conversation_turns (id, session_id, route, input, output, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, turn.ID, turn.SessionID, string(turn.Route), turn.Input, turn.Output, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// ListTurns returns the latest limit turns of a session, oldest first.
func (r *TurnRepository) ListTurns(ctx context.Context, sessionID string, limit int) ([]domain.ArchivedTurn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, session_id, route, input, output, created_at
FROM conversation_turns
WHERE session_id = $1
ORDER BY created_at DESC
LIMIT $2
`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ArchivedTurn, 0, limit)
	for rows.Next() {
		var (
			turn  domain.ArchivedTurn
			route string
		)
		if err := rows.Scan(&turn.ID, &turn.SessionID, &route, &turn.Input, &turn.Output, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Route = domain.Route(route)
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
