package adapters

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/ports"
)

// LibSQLConversationStore implements ConversationStore on the
// conversation_turns table.
type LibSQLConversationStore struct {
	db *sql.DB
}

// NewLibSQLConversationStore creates a new LibSQL conversation store.
func NewLibSQLConversationStore(db *sql.DB) *LibSQLConversationStore {
	return &LibSQLConversationStore{
		db: db,
	}
}

// SaveTurn appends a conversation turn.
func (s *LibSQLConversationStore) SaveTurn(ctx context.Context, conversationID string, turn ports.Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	turnJSON, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	query := `
		INSERT INTO conversation_turns (conversation_id, role, turn_data, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query, conversationID, turn.Role, string(turnJSON), turn.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}

	return nil
}

// LoadContext loads the last k turns for a conversation, oldest first.
func (s *LibSQLConversationStore) LoadContext(ctx context.Context, conversationID string, k int) ([]ports.Turn, error) {
	query := `
		SELECT turn_data FROM conversation_turns
		WHERE conversation_id = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []ports.Turn
	for rows.Next() {
		var turnJSON string
		if err := rows.Scan(&turnJSON); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}

		var turn ports.Turn
		if err := json.Unmarshal([]byte(turnJSON), &turn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}

		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	// Reverse to get chronological order (oldest first)
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	return turns, nil
}

// AppendToolArtifact records a tool call and its result.
func (s *LibSQLConversationStore) AppendToolArtifact(ctx context.Context, conversationID, name string, payload []byte) error {
	toolTurn := ports.Turn{
		Role:      "tool",
		Content:   fmt.Sprintf("%s: %s", name, string(payload)),
		CreatedAt: time.Now(),
	}

	return s.SaveTurn(ctx, conversationID, toolTurn)
}

// ConversationSummary describes one archived conversation.
type ConversationSummary struct {
	ID        string
	Turns     int
	StartedAt string
}

// Conversations lists the most recently active conversations.
func (s *LibSQLConversationStore) Conversations(ctx context.Context, limit int) ([]ConversationSummary, error) {
	query := `
		SELECT conversation_id, COUNT(*), MIN(created_at)
		FROM conversation_turns
		GROUP BY conversation_id
		ORDER BY MAX(id) DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var c ConversationSummary
		if err := rows.Scan(&c.ID, &c.Turns, &c.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return out, nil
}

// Ensure LibSQLConversationStore implements the ConversationStore interface.
var _ ports.ConversationStore = (*LibSQLConversationStore)(nil)
