// Package memory provides an in-process implementation of the repositories,
// used for local development and tests. GetForUpdate takes a per-card mutex
// that is held until the surrounding InTransaction returns; writes made inside
// a transaction are undone on rollback. Reads do not observe isolation, so a
// reader can see uncommitted writes of a concurrent transaction.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/upb/card-control/models"
	"github.com/upb/card-control/repositories"
)

// Store holds all data behind a single RWMutex plus one lock per card.
type Store struct {
	mu       sync.RWMutex
	cards    map[string]models.Card
	controls map[int64]models.Control
	txns     map[string]models.Transaction
	nextID   int64

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		cards:    make(map[string]models.Card),
		controls: make(map[int64]models.Control),
		txns:     make(map[string]models.Transaction),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Repositories returns the repository set backed by s
func (s *Store) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		Cards:        (*cardRepo)(s),
		Controls:     (*controlRepo)(s),
		Transactions: (*transactionRepo)(s),
		TxManager:    (*txManager)(s),
	}
}

// Ping always succeeds; it lets the store stand in for a database in health checks.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) cardLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

type txKey struct{}

type memTx struct {
	held []*sync.Mutex
	ids  []string
	undo []func()
}

func txFrom(ctx context.Context) (*memTx, bool) {
	tx, ok := ctx.Value(txKey{}).(*memTx)
	return tx, ok
}

// onRollback registers undo when ctx carries a transaction. Callers hold s.mu.
func onRollback(ctx context.Context, undo func()) {
	if tx, ok := txFrom(ctx); ok {
		tx.undo = append(tx.undo, undo)
	}
}

type txManager Store

var _ repositories.TxManager = (*txManager)(nil)

func (m *txManager) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}

	s := (*Store)(m)
	tx := &memTx{}
	defer func() {
		if p := recover(); p != nil {
			s.rollback(tx)
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		s.rollback(tx)
		return err
	}
	s.release(tx)
	return nil
}

func (s *Store) rollback(tx *memTx) {
	s.mu.Lock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	s.mu.Unlock()
	s.release(tx)
}

func (s *Store) release(tx *memTx) {
	for i := len(tx.held) - 1; i >= 0; i-- {
		tx.held[i].Unlock()
	}
	tx.held, tx.ids, tx.undo = nil, nil, nil
}

type cardRepo Store

func (r *cardRepo) Create(ctx context.Context, card *models.Card) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cards[card.ID]; exists {
		return fmt.Errorf("card %s: %w", card.ID, repositories.ErrDuplicate)
	}
	s.cards[card.ID] = *card
	onRollback(ctx, func() { delete(s.cards, card.ID) })
	return nil
}

func (r *cardRepo) GetByID(ctx context.Context, id string) (*models.Card, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	card, ok := s.cards[id]
	if !ok {
		return nil, fmt.Errorf("card %s: %w", id, repositories.ErrNotFound)
	}
	return &card, nil
}

func (r *cardRepo) GetForUpdate(ctx context.Context, id string) (*models.Card, error) {
	s := (*Store)(r)
	tx, ok := txFrom(ctx)
	if !ok {
		return nil, repositories.ErrNoTx
	}

	if !slices.Contains(tx.ids, id) {
		l := s.cardLock(id)
		l.Lock()
		tx.held = append(tx.held, l)
		tx.ids = append(tx.ids, id)
	}
	return r.GetByID(ctx, id)
}

func (r *cardRepo) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[id]
	if !ok {
		return fmt.Errorf("card %s: %w", id, repositories.ErrNotFound)
	}
	prev := card
	card.Balance = balance
	card.UpdatedAt = time.Now().UTC()
	s.cards[id] = card
	onRollback(ctx, func() { s.cards[id] = prev })
	return nil
}

func (r *cardRepo) Delete(ctx context.Context, id string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[id]
	if !ok {
		return fmt.Errorf("card %s: %w", id, repositories.ErrNotFound)
	}
	delete(s.cards, id)

	var removed []models.Control
	for cid, c := range s.controls {
		if c.CardID == id {
			removed = append(removed, c)
			delete(s.controls, cid)
		}
	}
	onRollback(ctx, func() {
		s.cards[id] = card
		for _, c := range removed {
			s.controls[c.ID] = c
		}
	})
	return nil
}

type controlRepo Store

func (r *controlRepo) Create(ctx context.Context, control *models.Control) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cards[control.CardID]; !ok {
		return fmt.Errorf("card %s: %w", control.CardID, repositories.ErrNotFound)
	}
	s.nextID++
	control.ID = s.nextID
	s.controls[control.ID] = *control

	id := control.ID
	onRollback(ctx, func() { delete(s.controls, id) })
	return nil
}

func (r *controlRepo) GetByID(ctx context.Context, id int64) (*models.Control, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.controls[id]
	if !ok {
		return nil, fmt.Errorf("control %d: %w", id, repositories.ErrNotFound)
	}
	return &c, nil
}

func (r *controlRepo) Delete(ctx context.Context, id int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.controls[id]
	if !ok {
		return fmt.Errorf("control %d: %w", id, repositories.ErrNotFound)
	}
	delete(s.controls, id)
	onRollback(ctx, func() { s.controls[id] = c })
	return nil
}

// byCard returns the card's controls ordered by ID. Callers hold s.mu.
func (s *Store) byCard(cardID string) []models.Control {
	var out []models.Control
	for _, c := range s.controls {
		if c.CardID == cardID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *controlRepo) ListByCard(ctx context.Context, cardID string) ([]*models.Control, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	controls := s.byCard(cardID)
	out := make([]*models.Control, len(controls))
	for i := range controls {
		out[i] = &controls[i]
	}
	return out, nil
}

func (r *controlRepo) CountByName(ctx context.Context, cardID, name string) (int, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.controls {
		if c.CardID == cardID && c.Name == name {
			n++
		}
	}
	return n, nil
}

func (r *controlRepo) GroupByCard(ctx context.Context, cardID string) (map[string][]string, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	grouped := make(map[string][]string)
	for _, c := range s.byCard(cardID) {
		grouped[c.Name] = append(grouped[c.Name], c.Value)
	}
	return grouped, nil
}

type transactionRepo Store

func (r *transactionRepo) Create(ctx context.Context, txn *models.Transaction) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txns[txn.ID]; exists {
		return fmt.Errorf("transaction %s: %w", txn.ID, repositories.ErrDuplicate)
	}
	stored := *txn
	if txn.Reason != nil {
		reason := *txn.Reason
		stored.Reason = &reason
	}
	s.txns[txn.ID] = stored
	onRollback(ctx, func() { delete(s.txns, txn.ID) })
	return nil
}

func (r *transactionRepo) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.txns[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, repositories.ErrNotFound)
	}
	return &txn, nil
}

func (r *transactionRepo) ListByCard(ctx context.Context, cardID string, limit, offset int) ([]*models.Transaction, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.Transaction
	for _, t := range s.txns {
		if t.CardID == cardID {
			all = append(all, &t)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
