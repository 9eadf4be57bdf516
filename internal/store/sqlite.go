// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Conversation, message and read-state persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/2389/coven-inbox/internal/chat"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Pragmas are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
// Timestamps are stored as unix nanoseconds so ordering is exact.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS participants (
			id           TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			avatar_url   TEXT NOT NULL DEFAULT '',
			deactivated  INTEGER NOT NULL DEFAULT 0,
			created_at   INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id            TEXT PRIMARY KEY,
			participant_a TEXT NOT NULL,
			participant_b TEXT NOT NULL,
			created_at    INTEGER NOT NULL,
			FOREIGN KEY (participant_a) REFERENCES participants(id),
			FOREIGN KEY (participant_b) REFERENCES participants(id),
			CHECK (participant_a <> participant_b)
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_a ON conversations(participant_a);
		CREATE INDEX IF NOT EXISTS idx_conversations_b ON conversations(participant_b);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_id       TEXT NOT NULL,
			body            TEXT NOT NULL,
			created_at      INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id),
			FOREIGN KEY (sender_id) REFERENCES participants(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_order
			ON messages(conversation_id, created_at, id);

		CREATE TABLE IF NOT EXISTS read_state (
			conversation_id TEXT NOT NULL,
			viewer_id       TEXT NOT NULL,
			through_id      TEXT NOT NULL,
			through_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL,
			PRIMARY KEY (conversation_id, viewer_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateParticipant stores a new participant.
func (s *SQLiteStore) CreateParticipant(ctx context.Context, p *Participant) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (id, display_name, avatar_url, deactivated, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.DisplayName, p.AvatarURL, p.Deactivated, p.CreatedAt.UnixNano())
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("participant %s: %w", p.ID, ErrDuplicate)
		}
		return fmt.Errorf("inserting participant: %w", err)
	}
	return nil
}

// GetParticipant retrieves a participant by ID.
func (s *SQLiteStore) GetParticipant(ctx context.Context, id string) (*Participant, error) {
	var (
		p         Participant
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, avatar_url, deactivated, created_at
		FROM participants WHERE id = ?
	`, id).Scan(&p.ID, &p.DisplayName, &p.AvatarURL, &p.Deactivated, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying participant: %w", err)
	}
	p.CreatedAt = time.Unix(0, createdAt).UTC()
	return &p, nil
}

// SetParticipantDeactivated flags or unflags a participant as deactivated.
func (s *SQLiteStore) SetParticipantDeactivated(ctx context.Context, id string, deactivated bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE participants SET deactivated = ? WHERE id = ?`, deactivated, id)
	if err != nil {
		return fmt.Errorf("updating participant: %w", err)
	}
	return requireAffected(res)
}

// CreateConversation stores a new two-party conversation. An empty ID is
// filled with a UUID.
func (s *SQLiteStore) CreateConversation(ctx context.Context, c *Conversation) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, participant_a, participant_b, created_at)
		VALUES (?, ?, ?, ?)
	`, c.ID, c.ParticipantIDs[0], c.ParticipantIDs[1], c.CreatedAt.UnixNano())
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("conversation %s: %w", c.ID, ErrDuplicate)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("participants %s, %s: %w", c.ParticipantIDs[0], c.ParticipantIDs[1], ErrNotFound)
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var (
		c         Conversation
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, participant_a, participant_b, created_at
		FROM conversations WHERE id = ?
	`, id).Scan(&c.ID, &c.ParticipantIDs[0], &c.ParticipantIDs[1], &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	c.CreatedAt = time.Unix(0, createdAt).UTC()
	return &c, nil
}

// ListConversations returns every conversation viewerID takes part in,
// with the counterpart, newest message and unread count filled in.
// Unread messages are those from the counterpart after the viewer's read
// position.
func (s *SQLiteStore) ListConversations(ctx context.Context, viewerID string) ([]chat.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			c.id,
			p.id, p.display_name, p.avatar_url, p.deactivated,
			lm.body, lm.created_at, lm.sender_id,
			(
				SELECT COUNT(*) FROM messages m
				WHERE m.conversation_id = c.id
				  AND m.sender_id <> ?
				  AND (
					rs.through_at IS NULL
					OR m.created_at > rs.through_at
					OR (m.created_at = rs.through_at AND m.id > rs.through_id)
				  )
			) AS unread
		FROM conversations c
		JOIN participants p
			ON p.id = CASE WHEN c.participant_a = ? THEN c.participant_b ELSE c.participant_a END
		LEFT JOIN read_state rs
			ON rs.conversation_id = c.id AND rs.viewer_id = ?
		LEFT JOIN messages lm
			ON lm.id = (
				SELECT m2.id FROM messages m2
				WHERE m2.conversation_id = c.id
				ORDER BY m2.created_at DESC, m2.id DESC
				LIMIT 1
			)
		WHERE c.participant_a = ? OR c.participant_b = ?
		ORDER BY c.id
	`, viewerID, viewerID, viewerID, viewerID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	conversations := []chat.Conversation{}
	for rows.Next() {
		var (
			c          chat.Conversation
			lastBody   sql.NullString
			lastAt     sql.NullInt64
			lastSender sql.NullString
		)
		if err := rows.Scan(
			&c.ID,
			&c.Counterpart.ID, &c.Counterpart.DisplayName, &c.Counterpart.AvatarURL, &c.Counterpart.Deactivated,
			&lastBody, &lastAt, &lastSender,
			&c.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		if lastAt.Valid {
			c.LastMessage = &chat.Preview{
				Text:     lastBody.String,
				SentAt:   time.Unix(0, lastAt.Int64).UTC(),
				SenderID: lastSender.String,
			}
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return conversations, nil
}

// SaveMessage stores a message. Empty ID and zero CreatedAt are filled in.
func (s *SQLiteStore) SaveMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.ConversationID, m.SenderID, m.Body, m.CreatedAt.UnixNano())
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("message %s: %w", m.ID, ErrDuplicate)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("conversation %s or sender %s: %w", m.ConversationID, m.SenderID, ErrNotFound)
		}
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	var (
		m         Message
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, body, created_at
		FROM messages WHERE id = ?
	`, id).Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	m.CreatedAt = time.Unix(0, createdAt).UTC()
	return &m, nil
}

// ListMessages returns the whole timeline of a conversation in message
// order, with sender display names.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, p.display_name, m.body, m.created_at
		FROM messages m
		JOIN participants p ON p.id = m.sender_id
		WHERE m.conversation_id = ?
		ORDER BY m.created_at ASC, m.id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := []chat.Message{}
	for rows.Next() {
		var (
			m         chat.Message
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.CreatedAt = time.Unix(0, createdAt).UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}

// MarkRead moves the viewer's read position forward to throughID.
func (s *SQLiteStore) MarkRead(ctx context.Context, conversationID, viewerID, throughID string) error {
	msg, err := s.GetMessage(ctx, throughID)
	if err != nil {
		return err
	}
	if msg.ConversationID != conversationID {
		return fmt.Errorf("message %s in conversation %s: %w", throughID, conversationID, ErrNotFound)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO read_state (conversation_id, viewer_id, through_id, through_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id, viewer_id) DO UPDATE SET
			through_id = excluded.through_id,
			through_at = excluded.through_at,
			updated_at = excluded.updated_at
		WHERE excluded.through_at > read_state.through_at
		   OR (excluded.through_at = read_state.through_at AND excluded.through_id > read_state.through_id)
	`, conversationID, viewerID, msg.ID, msg.CreatedAt.UnixNano(), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("updating read state: %w", err)
	}

	s.logger.Debug("read position updated",
		"conversation_id", conversationID,
		"viewer_id", viewerID,
		"through", throughID,
	)
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE or PRIMARY KEY violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "PRIMARY KEY constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
