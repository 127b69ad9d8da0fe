package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/product"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/stock"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/transaction"
)

// Store keeps transactions, products and stock movements behind a single
// mutex. Holding all three under one lock is what makes Settle a genuinely
// atomic unit: the status flip and the stock decrement commit together or
// not at all.
type Store struct {
	mu           sync.RWMutex
	transactions map[string]*transaction.Transaction
	byReference  map[string]string
	products     map[string]*product.Product
	movements    []*stock.Movement
}

func NewStore() *Store {
	return &Store{
		transactions: make(map[string]*transaction.Transaction),
		byReference:  make(map[string]string),
		products:     make(map[string]*product.Product),
	}
}

func (s *Store) Insert(ctx context.Context, t *transaction.Transaction) error {
	_ = ctx
	if t == nil || t.ID == "" {
		return fmt.Errorf("memory store: transaction id is required")
	}
	if t.Reference == "" {
		return fmt.Errorf("memory store: reference is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[t.ID]; exists {
		return transaction.ErrConflict
	}
	if _, exists := s.byReference[t.Reference]; exists {
		return transaction.ErrConflict
	}

	s.transactions[t.ID] = t.Clone()
	s.byReference[t.Reference] = t.ID
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*transaction.Transaction, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transactions[id]
	if !ok {
		return nil, transaction.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *Store) FindByReference(ctx context.Context, reference string) (*transaction.Transaction, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byReference[reference]
	if !ok {
		return nil, transaction.ErrNotFound
	}
	return s.transactions[id].Clone(), nil
}

func (s *Store) ListStalePending(ctx context.Context, before time.Time) ([]*transaction.Transaction, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []*transaction.Transaction
	for _, t := range s.transactions {
		if t.Status == transaction.StatusPending && t.UpdatedAt.Before(before) {
			stale = append(stale, t.Clone())
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	return stale, nil
}

func (s *Store) RecordExternalID(ctx context.Context, reference, externalID string) error {
	_ = ctx
	if externalID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byReference[reference]
	if !ok {
		return transaction.ErrNotFound
	}
	t := s.transactions[id]
	if t.Status.Terminal() {
		return transaction.ErrTerminalState
	}
	t.ExternalTransactionID = externalID
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) Settle(ctx context.Context, reference string, verdict transaction.Status, externalID string) (*transaction.SettleResult, error) {
	_ = ctx
	if !verdict.Terminal() {
		return nil, transaction.ErrInvalidVerdict
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byReference[reference]
	if !ok {
		return nil, transaction.ErrNotFound
	}
	t := s.transactions[id]

	if t.Status == verdict {
		return &transaction.SettleResult{Transaction: t.Clone(), Changed: false}, nil
	}
	if t.Status.Terminal() {
		return nil, transaction.ErrTerminalState
	}

	var movement *stock.Movement
	if verdict == transaction.StatusApproved {
		p, ok := s.products[t.ProductID]
		if !ok {
			return nil, product.ErrNotFound
		}
		if p.Stock < t.Quantity {
			return nil, stock.ErrInsufficientStock
		}
		previous := p.Stock
		p.Stock -= t.Quantity
		movement = &stock.Movement{
			ID:            uuid.NewString(),
			ProductID:     t.ProductID,
			TransactionID: t.ID,
			Quantity:      -t.Quantity,
			Type:          stock.MovementSale,
			PreviousStock: previous,
			NewStock:      p.Stock,
			Reference:     t.Reference,
			CreatedAt:     time.Now().UTC(),
		}
		s.movements = append(s.movements, movement)
	}

	t.Status = verdict
	if externalID != "" {
		t.ExternalTransactionID = externalID
	}
	t.UpdatedAt = time.Now().UTC()

	result := &transaction.SettleResult{Transaction: t.Clone(), Changed: true}
	if movement != nil {
		clone := *movement
		result.Movement = &clone
	}
	return result, nil
}

func (s *Store) FindProduct(ctx context.Context, id string) (*product.Product, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *Store) SaveProduct(ctx context.Context, p *product.Product) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("memory store: product id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.products[p.ID] = p.Clone()
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]*product.Product, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*product.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ApplyMovement applies a manual movement (RESTOCK, ADJUSTMENT, RETURN) as a
// single conditional update. SALE movements only happen through Settle.
func (s *Store) ApplyMovement(ctx context.Context, m stock.Movement) (*stock.Movement, error) {
	_ = ctx
	if !m.Type.Valid() || m.Type == stock.MovementSale {
		return nil, stock.ErrInvalidType
	}
	if m.Quantity == 0 {
		return nil, stock.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[m.ProductID]
	if !ok {
		return nil, product.ErrNotFound
	}
	if p.Stock+m.Quantity < 0 {
		return nil, stock.ErrInsufficientStock
	}

	m.ID = uuid.NewString()
	m.PreviousStock = p.Stock
	p.Stock += m.Quantity
	m.NewStock = p.Stock
	m.CreatedAt = time.Now().UTC()

	stored := m
	s.movements = append(s.movements, &stored)

	clone := stored
	return &clone, nil
}

func (s *Store) ListMovements(ctx context.Context, productID string) ([]*stock.Movement, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*stock.Movement
	for _, m := range s.movements {
		if productID != "" && m.ProductID != productID {
			continue
		}
		clone := *m
		out = append(out, &clone)
	}
	return out, nil
}
