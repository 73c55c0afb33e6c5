// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/tekkistudio/sales-orchestrator/internal/model"
)

// Store defines the persistence boundary for the orchestrator core.
// The core only needs upsert-by-session and append-only message insert;
// the column layout behind this interface is an implementation detail.
type Store interface {
	// GetSession hydrates a session and its message history.
	// Returns core.ErrNotFound when the session was never persisted.
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)

	// UpsertSession creates or replaces the session row. Message
	// history is not written here; use AppendMessages.
	UpsertSession(ctx context.Context, session *model.Session) error

	// AppendMessages inserts messages into the append-only log.
	AppendMessages(ctx context.Context, sessionID string, messages []model.Message) error

	// GetCart loads the cart blob for a session. Returns
	// core.ErrNotFound when no cart exists yet.
	GetCart(ctx context.Context, sessionID string) (*model.Cart, error)

	// SaveCart writes the cart blob for a session.
	SaveCart(ctx context.Context, cart *model.Cart) error

	// DeleteCart removes the cart blob for a session.
	DeleteCart(ctx context.Context, sessionID string) error

	// LoadKnowledgeItems bulk-loads the read-only knowledge base.
	LoadKnowledgeItems(ctx context.Context) ([]model.KnowledgeItem, error)

	// LoadSignalTables loads the newest versioned intent signal
	// document. Returns core.ErrNotFound when none has been uploaded.
	LoadSignalTables(ctx context.Context) ([]byte, int, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
