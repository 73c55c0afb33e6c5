// Package cart holds the per-session cart aggregate.
package cart

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/tekkistudio/sales-orchestrator/internal/core"
	"github.com/tekkistudio/sales-orchestrator/internal/model"
	"github.com/tekkistudio/sales-orchestrator/internal/retry"
	"github.com/tekkistudio/sales-orchestrator/internal/store"
	"github.com/tekkistudio/sales-orchestrator/pkg/logger"
	"github.com/tekkistudio/sales-orchestrator/pkg/metrics"
)

// Service owns cart state. Every mutation recomputes the total and is
// persisted before being reflected to the caller, so a page reload
// reconstructs the same cart.
type Service struct {
	store  store.Store
	logger *logger.Logger

	mu    sync.Mutex
	carts map[string]*model.Cart
}

// NewService creates the cart service.
func NewService(st store.Store, log *logger.Logger) *Service {
	return &Service{
		store:  st,
		logger: log,
		carts:  make(map[string]*model.Cart),
	}
}

// AddItem adds quantity of a product to the session's cart, creating
// the cart lazily on first product reference. Adding a product already
// present increments its quantity rather than duplicating the line.
func (s *Service) AddItem(ctx context.Context, sessionID, productID, name string, qty int, unitPrice int64) (*model.CartSummary, error) {
	if qty <= 0 {
		return nil, core.Validationf("quantity must be positive, got %d", qty)
	}
	if unitPrice < 0 {
		return nil, core.Validationf("unit price must be non-negative, got %d", unitPrice)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.loadLocked(ctx, sessionID)
	found := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity += qty
			found = true
			break
		}
	}
	if !found {
		cart.Items = append(cart.Items, model.CartItem{
			ProductID: productID,
			Name:      name,
			Quantity:  qty,
			UnitPrice: unitPrice,
		})
	}
	cart.Recompute()

	s.persistLocked(ctx, cart)
	metrics.CartMutations.WithLabelValues("add").Inc()
	return summarize(cart), nil
}

// SetQuantity sets the quantity of a product line. A quantity of zero
// or less removes the line; it is never retained at zero.
func (s *Service) SetQuantity(ctx context.Context, sessionID, productID string, qty int) (*model.CartSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.loadLocked(ctx, sessionID)

	idx := -1
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		if qty <= 0 {
			// Removing an absent line is a no-op.
			return summarize(cart), nil
		}
		return nil, core.Validationf("product %s not in cart", productID)
	}

	if qty <= 0 {
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	} else {
		cart.Items[idx].Quantity = qty
	}
	cart.Recompute()

	s.persistLocked(ctx, cart)
	metrics.CartMutations.WithLabelValues("set_quantity").Inc()
	return summarize(cart), nil
}

// SetDeliveryCost updates the delivery cost component of the total.
func (s *Service) SetDeliveryCost(ctx context.Context, sessionID string, cost int64) (*model.CartSummary, error) {
	if cost < 0 {
		return nil, core.Validationf("delivery cost must be non-negative, got %d", cost)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.loadLocked(ctx, sessionID)
	cart.DeliveryCost = cost
	cart.Recompute()

	s.persistLocked(ctx, cart)
	metrics.CartMutations.WithLabelValues("set_delivery").Inc()
	return summarize(cart), nil
}

// Clear empties the session's cart.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, sessionID)
	if err := s.store.DeleteCart(ctx, sessionID); err != nil {
		s.logger.Warn("cart delete failed, retrying in background",
			zap.String("session_id", sessionID), zap.Error(err))
		retry.InBackground(s.logger, "cart_delete", 0, func(ctx context.Context) error {
			return s.store.DeleteCart(ctx, sessionID)
		})
	}
	metrics.CartMutations.WithLabelValues("clear").Inc()
	return nil
}

// Evict drops the in-memory copy of a session's cart. The persisted
// copy is untouched; the next access rehydrates from the store.
func (s *Service) Evict(sessionID string) {
	s.mu.Lock()
	delete(s.carts, sessionID)
	s.mu.Unlock()
}

// Summary returns the current cart read model.
func (s *Service) Summary(ctx context.Context, sessionID string) *model.CartSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return summarize(s.loadLocked(ctx, sessionID))
}

// loadLocked fetches the cached cart, hydrating from the store on
// first access. A missing persisted cart yields a fresh empty one.
func (s *Service) loadLocked(ctx context.Context, sessionID string) *model.Cart {
	if cart, ok := s.carts[sessionID]; ok {
		return cart
	}

	cart, err := s.store.GetCart(ctx, sessionID)
	if err != nil || cart == nil {
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			// Store unreachable: operate from a fresh in-memory cart;
			// the next successful persist re-establishes the copy.
			cart = nil
		}
		cart = &model.Cart{SessionID: sessionID}
	}
	cart.Recompute()
	s.carts[sessionID] = cart
	return cart
}

// persistLocked writes the cart synchronously; a failed write keeps
// the session operating from memory while a background retry
// reattempts it.
func (s *Service) persistLocked(ctx context.Context, cart *model.Cart) {
	if err := s.store.SaveCart(ctx, cart); err != nil {
		s.logger.Warn("cart persist failed, retrying in background",
			zap.String("session_id", cart.SessionID), zap.Error(err))
		snapshot := *cart
		snapshot.Items = append([]model.CartItem(nil), cart.Items...)
		retry.InBackground(s.logger, "cart_save", 0, func(ctx context.Context) error {
			return s.store.SaveCart(ctx, &snapshot)
		})
	}
}

func summarize(cart *model.Cart) *model.CartSummary {
	return &model.CartSummary{
		SessionID:    cart.SessionID,
		Items:        append([]model.CartItem(nil), cart.Items...),
		DeliveryCost: cart.DeliveryCost,
		Total:        cart.Total,
	}
}
