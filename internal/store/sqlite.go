package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tekkistudio/sales-orchestrator/internal/core"
	"github.com/tekkistudio/sales-orchestrator/internal/model"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for concurrent readers while the orchestrator writes.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS conversations (
		session_id TEXT PRIMARY KEY,
		product_id TEXT,
		customer_id TEXT,
		current_phase TEXT NOT NULL,
		metadata_json TEXT,
		cart_json TEXT,
		created_at INTEGER NOT NULL,
		last_activity INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_activity ON conversations(last_activity);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		choices_json TEXT,
		meta_json TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at);

	CREATE TABLE IF NOT EXISTS knowledge_base (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		trigger_keywords_json TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		follow_ups_json TEXT
	);

	CREATE TABLE IF NOT EXISTS signal_tables (
		version INTEGER PRIMARY KEY,
		document_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetSession hydrates a session row and its message history.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	query := `
		SELECT session_id, product_id, customer_id, current_phase,
		       metadata_json, created_at, last_activity
		FROM conversations WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var sess model.Session
	var productID, customerID, metadataJSON sql.NullString
	var createdAt, lastActivity int64

	err := row.Scan(
		&sess.ID, &productID, &customerID, &sess.CurrentPhase,
		&metadataJSON, &createdAt, &lastActivity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.ProductID = productID.String
	sess.CustomerID = customerID.String
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.LastActivity = time.Unix(lastActivity, 0)
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &sess.Metadata); err != nil {
			return nil, fmt.Errorf("decode session metadata: %w", err)
		}
	}

	messages, err := s.getMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.Messages = messages

	return &sess, nil
}

func (s *SQLiteStore) getMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	query := `
		SELECT id, session_id, role, text, choices_json, meta_json, created_at
		FROM chat_messages WHERE session_id = ? ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var msg model.Message
		var choicesJSON, metaJSON sql.NullString
		var createdAt int64

		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Text,
			&choicesJSON, &metaJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.CreatedAt = time.Unix(createdAt, 0)
		if choicesJSON.Valid && choicesJSON.String != "" {
			if err := json.Unmarshal([]byte(choicesJSON.String), &msg.Choices); err != nil {
				return nil, fmt.Errorf("decode message choices: %w", err)
			}
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &msg.Meta); err != nil {
				return nil, fmt.Errorf("decode message meta: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UpsertSession creates or replaces the conversation row.
func (s *SQLiteStore) UpsertSession(ctx context.Context, session *model.Session) error {
	metadataJSON, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("encode session metadata: %w", err)
	}

	query := `
		INSERT INTO conversations
			(session_id, product_id, customer_id, current_phase, metadata_json, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			product_id = excluded.product_id,
			customer_id = excluded.customer_id,
			current_phase = excluded.current_phase,
			metadata_json = excluded.metadata_json,
			last_activity = excluded.last_activity`

	_, err = s.db.ExecContext(ctx, query,
		session.ID, session.ProductID, session.CustomerID, string(session.CurrentPhase),
		string(metadataJSON), session.CreatedAt.Unix(), session.LastActivity.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w: %v", session.ID, core.ErrPersistence, err)
	}
	return nil
}

// AppendMessages inserts messages into the append-only log.
func (s *SQLiteStore) AppendMessages(ctx context.Context, sessionID string, messages []model.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w: %v", core.ErrPersistence, err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO chat_messages (id, session_id, role, text, choices_json, meta_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	for _, msg := range messages {
		id := msg.ID
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}
		var choicesJSON, metaJSON []byte
		if len(msg.Choices) > 0 {
			if choicesJSON, err = json.Marshal(msg.Choices); err != nil {
				return fmt.Errorf("encode choices: %w", err)
			}
		}
		if msg.Meta != nil {
			if metaJSON, err = json.Marshal(msg.Meta); err != nil {
				return fmt.Errorf("encode meta: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, query,
			id, sessionID, string(msg.Role), msg.Text,
			nullable(choicesJSON), nullable(metaJSON), msg.CreatedAt.Unix(),
		); err != nil {
			return fmt.Errorf("insert message: %w: %v", core.ErrPersistence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit messages: %w: %v", core.ErrPersistence, err)
	}
	return nil
}

// GetCart loads the cart blob embedded in the conversation row.
func (s *SQLiteStore) GetCart(ctx context.Context, sessionID string) (*model.Cart, error) {
	var cartJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT cart_json FROM conversations WHERE session_id = ?`, sessionID,
	).Scan(&cartJSON)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && (!cartJSON.Valid || cartJSON.String == "")) {
		return nil, fmt.Errorf("cart for %s: %w", sessionID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}

	var cart model.Cart
	if err := json.Unmarshal([]byte(cartJSON.String), &cart); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return &cart, nil
}

// SaveCart writes the cart blob, creating a bare conversation row if
// the session was never persisted.
func (s *SQLiteStore) SaveCart(ctx context.Context, cart *model.Cart) error {
	cartJSON, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}

	now := time.Now().Unix()
	query := `
		INSERT INTO conversations (session_id, current_phase, cart_json, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			cart_json = excluded.cart_json,
			last_activity = excluded.last_activity`

	_, err = s.db.ExecContext(ctx, query,
		cart.SessionID, string(model.PhaseRapportBuilding), string(cartJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("save cart %s: %w: %v", cart.SessionID, core.ErrPersistence, err)
	}
	return nil
}

// DeleteCart removes the cart blob for a session.
func (s *SQLiteStore) DeleteCart(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET cart_json = NULL WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete cart %s: %w: %v", sessionID, core.ErrPersistence, err)
	}
	return nil
}

// LoadKnowledgeItems bulk-loads the knowledge base. Items with no
// trigger keywords are skipped; they would be unreachable by search.
func (s *SQLiteStore) LoadKnowledgeItems(ctx context.Context) ([]model.KnowledgeItem, error) {
	query := `
		SELECT id, category, trigger_keywords_json, question, answer, priority, follow_ups_json
		FROM knowledge_base`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query knowledge base: %w: %v", core.ErrKnowledgeRetrieval, err)
	}
	defer rows.Close()

	var items []model.KnowledgeItem
	for rows.Next() {
		var item model.KnowledgeItem
		var keywordsJSON string
		var followUpsJSON sql.NullString

		if err := rows.Scan(&item.ID, &item.Category, &keywordsJSON,
			&item.Question, &item.Answer, &item.Priority, &followUpsJSON); err != nil {
			return nil, fmt.Errorf("scan knowledge row: %w", err)
		}
		if err := json.Unmarshal([]byte(keywordsJSON), &item.TriggerKeywords); err != nil {
			return nil, fmt.Errorf("decode trigger keywords: %w", err)
		}
		if followUpsJSON.Valid && followUpsJSON.String != "" {
			if err := json.Unmarshal([]byte(followUpsJSON.String), &item.SuggestedFollowUps); err != nil {
				return nil, fmt.Errorf("decode follow-ups: %w", err)
			}
		}
		if len(item.TriggerKeywords) == 0 {
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// LoadSignalTables loads the newest versioned intent signal document.
func (s *SQLiteStore) LoadSignalTables(ctx context.Context) ([]byte, int, error) {
	var doc string
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT version, document_json FROM signal_tables ORDER BY version DESC LIMIT 1`,
	).Scan(&version, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("signal tables: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("query signal tables: %w", err)
	}
	return []byte(doc), version, nil
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
