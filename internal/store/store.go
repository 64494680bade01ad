// Package store provides SQLite-based persistence for bots, their knowledge
// documents, conversations and messages.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"

	"github.com/comigor/botdesk/internal/prompt"
)

// DefaultPrimaryColor is applied to bots created without a color.
const DefaultPrimaryColor = "#3b82f6"

// timestamps are stored as UTC text without an offset
const timeLayout = "2006-01-02 15:04:05.000"

var ErrInvalidRole = errors.New("message role must be user or assistant")

const schema = `
CREATE TABLE IF NOT EXISTS bot (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    system_prompt TEXT NOT NULL,
    primary_color TEXT NOT NULL DEFAULT '#3b82f6',
    user_id TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS document (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    bot_id TEXT NOT NULL REFERENCES bot(id) ON DELETE CASCADE,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_document_bot_id ON document(bot_id);
CREATE TABLE IF NOT EXISTS conversation (
    id TEXT PRIMARY KEY,
    bot_id TEXT NOT NULL REFERENCES bot(id) ON DELETE CASCADE,
    created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS message (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_message_conversation_id ON message(conversation_id);
`

// Store is the persistence gateway. The underlying *sql.DB pools its own
// connections; Store holds no other state shared between requests.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db at %s: %w", path, err)
	}

	s := New(db)
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates the tables if they don't exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetBot returns the bot with the given id, or nil when there is none.
func (s *Store) GetBot(ctx context.Context, botID string) (*Bot, error) {
	var (
		b                    Bot
		userID               sql.NullString
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, system_prompt, primary_color, user_id, created_at, updated_at FROM bot WHERE id = ?`,
		botID,
	).Scan(&b.ID, &b.Name, &b.SystemPrompt, &b.PrimaryColor, &userID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bot %s: %w", botID, err)
	}
	b.UserID = userID.String
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

// GetDocuments returns the contents of a bot's documents in insertion order.
func (s *Store) GetDocuments(ctx context.Context, botID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT content FROM document WHERE bot_id = ? ORDER BY rowid ASC`, botID)
	if err != nil {
		return nil, fmt.Errorf("get documents for bot %s: %w", botID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, content)
	}
	return out, rows.Err()
}

// EnsureConversation creates the conversation row if it does not exist yet.
// Racing callers for the same chatID all succeed and leave a single row.
func (s *Store) EnsureConversation(ctx context.Context, chatID, botID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation (id, bot_id, created_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		chatID, botID, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("ensure conversation %s: %w", chatID, err)
	}
	return nil
}

// AppendMessage inserts a message and returns its generated id.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, role prompt.Role, content string) (string, error) {
	if role != prompt.RoleUser && role != prompt.RoleAssistant {
		return "", ErrInvalidRole
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, conversationID, role.String(), content, s.stamp(),
	)
	if err != nil {
		return "", fmt.Errorf("append %s message to %s: %w", role, conversationID, err)
	}
	return id, nil
}

// ListMessages returns all messages of a conversation in chronological order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM message WHERE conversation_id = ? ORDER BY rowid ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages of %s: %w", conversationID, err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var (
			m         Message
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateBot inserts a new bot, filling in id, color and timestamps.
func (s *Store) CreateBot(ctx context.Context, b *Bot) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.PrimaryColor == "" {
		b.PrimaryColor = DefaultPrimaryColor
	}
	now := s.now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now

	var userID sql.NullString
	if b.UserID != "" {
		userID = sql.NullString{String: b.UserID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot (id, name, system_prompt, primary_color, user_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.SystemPrompt, b.PrimaryColor, userID, now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	return nil
}

// AddDocument attaches a document to an existing bot.
func (s *Store) AddDocument(ctx context.Context, botID, content string) (*Document, error) {
	now := s.now().UTC()
	d := &Document{ID: uuid.NewString(), BotID: botID, Content: content, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document (id, content, bot_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.Content, d.BotID, now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("add document to bot %s: %w", botID, err)
	}
	return d, nil
}

// DefaultConversationLimit caps ListConversations when no limit is given.
const DefaultConversationLimit = 100

// ListBots returns every bot, newest first, with its conversation and document counts.
func (s *Store) ListBots(ctx context.Context) ([]BotSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT b.id, b.name, b.primary_color, b.user_id, b.created_at,
		(SELECT COUNT(*) FROM conversation c WHERE c.bot_id = b.id),
		(SELECT COUNT(*) FROM document d WHERE d.bot_id = b.id)
		FROM bot b ORDER BY b.created_at DESC, b.rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()

	out := []BotSummary{}
	for rows.Next() {
		var (
			b         BotSummary
			userID    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.PrimaryColor, &userID, &createdAt, &b.Conversations, &b.Documents); err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		b.UserID = userID.String
		b.CreatedAt = parseTime(createdAt)
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListConversations returns the most recent conversations with their bot and
// message count. A limit <= 0 means DefaultConversationLimit.
func (s *Store) ListConversations(ctx context.Context, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = DefaultConversationLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT c.id, c.bot_id, b.name, b.primary_color, c.created_at,
		(SELECT COUNT(*) FROM message m WHERE m.conversation_id = c.id)
		FROM conversation c JOIN bot b ON b.id = c.bot_id
		ORDER BY c.created_at DESC, c.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := []ConversationSummary{}
	for rows.Next() {
		var (
			c         ConversationSummary
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.BotID, &c.BotName, &c.PrimaryColor, &createdAt, &c.Messages); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Stats counts the rows of every table.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM bot),
		(SELECT COUNT(*) FROM document),
		(SELECT COUNT(*) FROM conversation),
		(SELECT COUNT(*) FROM message)`,
	).Scan(&st.Bots, &st.Documents, &st.Conversations, &st.Messages)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
