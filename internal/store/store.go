// Package store holds one user's cart aggregate behind a single-writer lock
// and notifies subscribers of every change.
package store

import (
	"sync"

	"github.com/dralsallum/theKnot-sub000/internal/domain"
)

// Snapshot is a read-only copy of the cart at a given version.
type Snapshot struct {
	State   domain.CartState `json:"state"`
	Version uint64           `json:"version"`
}

// Listener receives the snapshot produced by a state-changing command.
type Listener func(Snapshot)

// Store serializes commands against a cart aggregate. It is created per
// session and passed to its consumers explicitly.
//
// Listeners run synchronously after the state lock is released, in the order
// the changes were committed. A listener may read Snapshot but must not issue
// commands on the same store.
type Store struct {
	mu      sync.Mutex
	state   *domain.CartState
	version uint64

	// notifyMu is taken before mu is released so deliveries keep commit order.
	notifyMu  sync.Mutex
	listeners []subscription
	nextID    uint64
}

type subscription struct {
	id uint64
	fn Listener
}

// New creates a store around state. A nil state starts an empty cart; a
// non-nil one is recalculated so restored aggregates are consistent.
func New(state *domain.CartState) *Store {
	if state == nil {
		state = domain.NewCartState()
	} else {
		state = state.Clone()
		state.Recalculate()
	}
	return &Store{state: state}
}

// Restore creates a store that continues from a persisted snapshot, so the
// next change gets version snap.Version+1.
func Restore(snap Snapshot) *Store {
	s := New(&snap.State)
	s.version = snap.Version
	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{State: *s.state.Clone(), Version: s.version}
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.listeners {
				if sub.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// AddToCart merges quantity units of item into the cart.
func (s *Store) AddToCart(item domain.CartLine, quantity int) (Snapshot, error) {
	return s.apply(func(st *domain.CartState) (bool, error) {
		return true, st.AddToCart(item, quantity)
	})
}

// RemoveFromCart deletes the line for productID. Removing an absent product
// returns the unchanged snapshot and notifies no one.
func (s *Store) RemoveFromCart(productID string) (Snapshot, error) {
	return s.apply(func(st *domain.CartState) (bool, error) {
		return st.RemoveFromCart(productID), nil
	})
}

// ClearCart empties the cart and resets the payment status.
func (s *Store) ClearCart() (Snapshot, error) {
	return s.apply(func(st *domain.CartState) (bool, error) {
		changed := !st.IsEmpty() || st.Status != domain.PaymentIdle
		st.ClearCart()
		return changed, nil
	})
}

// MarkPaymentStarted moves the status to paying.
func (s *Store) MarkPaymentStarted() (Snapshot, error) {
	return s.apply(func(st *domain.CartState) (bool, error) {
		return true, st.MarkPaymentStarted()
	})
}

// MarkPaymentSucceeded moves the status to paid.
func (s *Store) MarkPaymentSucceeded() (Snapshot, error) {
	return s.apply(func(st *domain.CartState) (bool, error) {
		return true, st.MarkPaymentSucceeded()
	})
}

// MarkPaymentFailed moves the status to failed.
func (s *Store) MarkPaymentFailed() (Snapshot, error) {
	return s.apply(func(st *domain.CartState) (bool, error) {
		return true, st.MarkPaymentFailed()
	})
}

// SettlePayment removes the paid quantities from a paid cart and returns it
// to idle.
func (s *Store) SettlePayment(paid []domain.CartLine) (Snapshot, error) {
	return s.apply(func(st *domain.CartState) (bool, error) {
		return true, st.SettlePayment(paid)
	})
}

// apply runs cmd under the state lock. Domain commands leave the state
// untouched when they fail, so an error never bumps the version.
func (s *Store) apply(cmd func(*domain.CartState) (bool, error)) (Snapshot, error) {
	s.mu.Lock()
	changed, err := cmd(s.state)
	if err != nil || !changed {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, err
	}

	s.version++
	snap := s.snapshotLocked()
	listeners := s.listeners

	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, sub := range listeners {
		sub.fn(snap)
	}
	return snap, nil
}
