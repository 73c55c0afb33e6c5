// Package storetest provides an in-memory Store for tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tekkistudio/sales-orchestrator/internal/core"
	"github.com/tekkistudio/sales-orchestrator/internal/model"
)

// Fake is an in-memory store.Store. Set FailWrites or FailReads to
// simulate a broken backend.
type Fake struct {
	mu sync.Mutex

	Sessions   map[string]*model.Session
	MessageLog map[string][]model.Message
	Carts      map[string]*model.Cart
	Knowledge  []model.KnowledgeItem
	SignalsDoc []byte
	SignalsVer int

	FailWrites bool
	FailReads  bool

	KnowledgeLoads int
}

// New creates an empty fake store.
func New() *Fake {
	return &Fake{
		Sessions:   make(map[string]*model.Session),
		MessageLog: make(map[string][]model.Message),
		Carts:      make(map[string]*model.Cart),
	}
}

func (f *Fake) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailReads {
		return nil, errors.New("store down")
	}
	sess, ok := f.Sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
	}
	cp := *sess
	cp.Messages = append([]model.Message(nil), f.MessageLog[sessionID]...)
	return &cp, nil
}

func (f *Fake) UpsertSession(ctx context.Context, session *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWrites {
		return fmt.Errorf("upsert: %w", core.ErrPersistence)
	}
	cp := *session
	cp.Messages = nil
	f.Sessions[session.ID] = &cp
	return nil
}

func (f *Fake) AppendMessages(ctx context.Context, sessionID string, messages []model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWrites {
		return fmt.Errorf("append: %w", core.ErrPersistence)
	}
	f.MessageLog[sessionID] = append(f.MessageLog[sessionID], messages...)
	return nil
}

func (f *Fake) GetCart(ctx context.Context, sessionID string) (*model.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailReads {
		return nil, errors.New("store down")
	}
	cart, ok := f.Carts[sessionID]
	if !ok {
		return nil, fmt.Errorf("cart for %s: %w", sessionID, core.ErrNotFound)
	}
	cp := *cart
	cp.Items = append([]model.CartItem(nil), cart.Items...)
	return &cp, nil
}

func (f *Fake) SaveCart(ctx context.Context, cart *model.Cart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWrites {
		return fmt.Errorf("save cart: %w", core.ErrPersistence)
	}
	cp := *cart
	cp.Items = append([]model.CartItem(nil), cart.Items...)
	f.Carts[cart.SessionID] = &cp
	return nil
}

func (f *Fake) DeleteCart(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWrites {
		return fmt.Errorf("delete cart: %w", core.ErrPersistence)
	}
	delete(f.Carts, sessionID)
	return nil
}

func (f *Fake) LoadKnowledgeItems(ctx context.Context) ([]model.KnowledgeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.KnowledgeLoads++
	if f.FailReads {
		return nil, fmt.Errorf("load knowledge: %w", core.ErrKnowledgeRetrieval)
	}
	return append([]model.KnowledgeItem(nil), f.Knowledge...), nil
}

func (f *Fake) LoadSignalTables(ctx context.Context) ([]byte, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailReads || f.SignalsDoc == nil {
		return nil, 0, fmt.Errorf("signal tables: %w", core.ErrNotFound)
	}
	return f.SignalsDoc, f.SignalsVer, nil
}

func (f *Fake) Ping(ctx context.Context) error { return nil }
func (f *Fake) Close() error                   { return nil }
