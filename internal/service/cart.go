package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dralsallum/theKnot-sub000/internal/backend"
	"github.com/dralsallum/theKnot-sub000/internal/domain"
	"github.com/dralsallum/theKnot-sub000/internal/feedback"
	"github.com/dralsallum/theKnot-sub000/internal/optimistic"
	"github.com/dralsallum/theKnot-sub000/internal/repository"
	"github.com/dralsallum/theKnot-sub000/internal/store"
	apperrors "github.com/dralsallum/theKnot-sub000/pkg/errors"
)

var commandsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cart_commands_total",
		Help: "Cart commands by command and outcome",
	},
	[]string{"command", "result"},
)

const (
	resultOK    = "ok"
	resultNoop  = "noop"
	resultError = "error"
)

// EventPublisher publishes cart domain events. *event.Producer satisfies it.
type EventPublisher interface {
	PublishCartUpdated(ctx context.Context, userID string, snap store.Snapshot) error
	PublishCartCleared(ctx context.Context, userID string, version uint64) error
	PublishPaymentStatus(ctx context.Context, userID, paymentID string, snap store.Snapshot) error
}

// PaymentGateway creates payments on the backend.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req backend.PaymentRequest) (*backend.Payment, error)
}

// AddItemInput holds the parameters for adding an item to the cart. A zero
// Quantity adds one unit.
type AddItemInput struct {
	ProductID string
	Name      string
	ImageURL  string
	Category  string
	UnitPrice int64
	Quantity  int
}

// CartView is a cart snapshot plus the products whose "added" indicator is
// still showing.
type CartView struct {
	store.Snapshot
	RecentlyAdded []string
}

// CheckoutResult describes the payment created by Checkout.
type CheckoutResult struct {
	PaymentID     string
	PaymentStatus string
	CheckoutURL   string
	Cart          store.Snapshot
}

// Options configures a CartService.
type Options struct {
	Currency    string
	SaveTimeout time.Duration
	// IdleTimeout is how long an unused session stays in memory. Zero keeps
	// sessions until Close.
	IdleTimeout time.Duration
}

type session struct {
	store       *store.Store
	unsubscribe func()
	lastUsed    atomic.Int64
}

func (s *session) touch(now time.Time) {
	s.lastUsed.Store(now.UnixNano())
}

func (s *session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastUsed.Load()))
}

// CartService owns one store per signed-in user. Stores are restored from the
// repository on first use and persisted after every change.
type CartService struct {
	repo     repository.SessionRepository
	events   EventPublisher
	payments PaymentGateway
	feedback *feedback.Indicator
	logger   *slog.Logger
	opts     Options

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// NewCartService creates a new cart service.
func NewCartService(
	repo repository.SessionRepository,
	events EventPublisher,
	payments PaymentGateway,
	indicator *feedback.Indicator,
	logger *slog.Logger,
	opts Options,
) *CartService {
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 2 * time.Second
	}
	return &CartService{
		repo:     repo,
		events:   events,
		payments: payments,
		feedback: indicator,
		logger:   logger,
		opts:     opts,
		sessions: make(map[string]*session),
	}
}

// GetCart returns the user's cart, restoring it from the repository when the
// session has not been used yet.
func (s *CartService) GetCart(ctx context.Context, userID string) (*CartView, error) {
	st, err := s.storeFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(userID, st.Snapshot()), nil
}

// AddItem merges input into the user's cart.
func (s *CartService) AddItem(ctx context.Context, userID string, input AddItemInput) (*CartView, error) {
	st, err := s.storeFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	line := domain.CartLine{
		ProductID: input.ProductID,
		Name:      input.Name,
		ImageURL:  input.ImageURL,
		Category:  input.Category,
		UnitPrice: input.UnitPrice,
	}
	snap, err := st.AddToCart(line, input.Quantity)
	if err != nil {
		commandsTotal.WithLabelValues("add", resultError).Inc()
		return nil, err
	}
	commandsTotal.WithLabelValues("add", resultOK).Inc()

	if s.feedback != nil {
		s.feedback.Mark(feedback.Key{Owner: userID, Item: input.ProductID})
	}
	s.publishUpdated(ctx, userID, snap)

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("user_id", userID),
		slog.String("product_id", input.ProductID),
		slog.Int("quantity", max(input.Quantity, 1)),
	)

	return s.view(userID, snap), nil
}

// RemoveItem deletes the product's line. Removing a product that is not in
// the cart returns the unchanged cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*CartView, error) {
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	st, err := s.storeFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	before := st.Snapshot().Version
	snap, err := st.RemoveFromCart(productID)
	if err != nil {
		commandsTotal.WithLabelValues("remove", resultError).Inc()
		return nil, err
	}
	if snap.Version == before {
		commandsTotal.WithLabelValues("remove", resultNoop).Inc()
		return s.view(userID, snap), nil
	}
	commandsTotal.WithLabelValues("remove", resultOK).Inc()

	if s.feedback != nil {
		s.feedback.Clear(feedback.Key{Owner: userID, Item: productID})
	}
	s.publishUpdated(ctx, userID, snap)

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("user_id", userID),
		slog.String("product_id", productID),
	)

	return s.view(userID, snap), nil
}

// ClearCart empties the user's cart and resets its payment status.
func (s *CartService) ClearCart(ctx context.Context, userID string) (*CartView, error) {
	st, err := s.storeFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	before := st.Snapshot().Version
	snap, err := st.ClearCart()
	if err != nil {
		commandsTotal.WithLabelValues("clear", resultError).Inc()
		return nil, err
	}
	if snap.Version == before {
		commandsTotal.WithLabelValues("clear", resultNoop).Inc()
		return s.view(userID, snap), nil
	}
	commandsTotal.WithLabelValues("clear", resultOK).Inc()

	s.publishCleared(ctx, userID, snap)
	s.logger.InfoContext(ctx, "cart cleared", slog.String("user_id", userID))

	return s.view(userID, snap), nil
}

// Checkout starts a payment for the cart total. The cart moves to paying
// before the backend is called and to failed if the call errors. A succeeded
// payment marks the cart paid and removes the charged lines; a pending one
// leaves it paying until ApplyPaymentResult delivers the outcome. Lines added
// while paying are not charged and stay in the cart.
func (s *CartService) Checkout(ctx context.Context, userID string) (*CheckoutResult, error) {
	st, err := s.storeFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cur := st.Snapshot(); cur.State.IsEmpty() {
		commandsTotal.WithLabelValues("checkout", resultError).Inc()
		return nil, apperrors.InvalidInput("cart is empty")
	}

	var (
		started store.Snapshot
		payment *backend.Payment
		// One key per checkout, so transport retries cannot charge twice.
		idempotencyKey = uuid.New().String()
	)
	res := optimistic.Execute(ctx, optimistic.Command[store.Snapshot]{
		Apply: func() (store.Snapshot, error) {
			snap, err := st.MarkPaymentStarted()
			started = snap
			return snap, err
		},
		Remote: func(ctx context.Context) error {
			s.publishPaymentStatus(ctx, userID, "", started)
			// Recorded before the call: the confirmation event may arrive
			// before CreatePayment returns.
			s.rememberPending(ctx, userID, "", started.State)

			p, err := s.payments.CreatePayment(ctx, paymentRequest(userID, s.opts.Currency, idempotencyKey, started.State))
			if err != nil {
				return err
			}
			payment = p
			return nil
		},
		Revert: func() {
			if snap, err := st.MarkPaymentFailed(); err == nil {
				s.publishPaymentStatus(ctx, userID, "", snap)
			}
		},
	})
	if !res.IsOk() {
		commandsTotal.WithLabelValues("checkout", resultError).Inc()
		s.logger.WarnContext(ctx, "checkout failed",
			slog.String("user_id", userID),
			slog.Bool("rolled_back", res.RolledBack()),
			slog.String("error", res.Err().Error()),
		)
		if res.RolledBack() {
			s.forgetPending(ctx, userID, "")
			return nil, fmt.Errorf("create payment: %w", res.Err())
		}
		return nil, res.Err()
	}

	result := &CheckoutResult{
		PaymentID:     payment.ID,
		PaymentStatus: payment.Status,
		CheckoutURL:   payment.CheckoutURL,
	}

	switch payment.Status {
	case backend.PaymentStatusSucceeded:
		snap, err := s.completePayment(ctx, st, userID, payment.ID, started.State.Lines)
		if err != nil {
			return nil, err
		}
		s.forgetPending(ctx, userID, payment.ID)
		result.Cart = snap
	case backend.PaymentStatusPending:
		result.Cart = st.Snapshot()
		// The confirmation may already have settled the cart.
		if result.Cart.State.Status == domain.PaymentPaying {
			s.rememberPending(ctx, userID, payment.ID, started.State)
		}
	default:
		s.forgetPending(ctx, userID, payment.ID)
		if _, err := s.failPayment(ctx, st, userID, payment.ID); err != nil {
			return nil, err
		}
		commandsTotal.WithLabelValues("checkout", resultError).Inc()
		s.logger.WarnContext(ctx, "payment declined",
			slog.String("user_id", userID),
			slog.String("payment_id", payment.ID),
			slog.String("status", payment.Status),
		)
		return nil, apperrors.PaymentFailed(fmt.Sprintf("payment %s was not accepted", payment.ID))
	}

	commandsTotal.WithLabelValues("checkout", resultOK).Inc()
	s.logger.InfoContext(ctx, "checkout completed",
		slog.String("user_id", userID),
		slog.String("payment_id", payment.ID),
		slog.String("payment_status", payment.Status),
		slog.Int64("amount", started.State.TotalPrice),
	)

	return result, nil
}

// ApplyPaymentResult delivers the asynchronous outcome of a pending payment.
// The cart must still be paying; otherwise an apperrors.Conflict is returned.
func (s *CartService) ApplyPaymentResult(ctx context.Context, userID, paymentID string, succeeded bool) error {
	st, err := s.storeFor(ctx, userID)
	if err != nil {
		return err
	}

	if succeeded {
		var paid []domain.CartLine
		paid, err = s.pendingLines(ctx, userID, paymentID)
		if err == nil {
			_, err = s.completePayment(ctx, st, userID, paymentID, paid)
		}
	} else {
		_, err = s.failPayment(ctx, st, userID, paymentID)
	}
	if err != nil {
		commandsTotal.WithLabelValues("payment_result", resultError).Inc()
		return err
	}
	commandsTotal.WithLabelValues("payment_result", resultOK).Inc()
	s.forgetPending(ctx, userID, paymentID)

	s.logger.InfoContext(ctx, "payment result applied",
		slog.String("user_id", userID),
		slog.String("payment_id", paymentID),
		slog.Bool("succeeded", succeeded),
	)
	return nil
}

// Close detaches every session from persistence. Later calls fail with
// apperrors.ErrServiceUnavail.
func (s *CartService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.unsubscribe()
		delete(s.sessions, id)
	}
	s.closed = true
}

// completePayment marks the cart paid, then removes the charged lines. When
// the charged lines are unknown (nil) the whole cart is cleared.
func (s *CartService) completePayment(ctx context.Context, st *store.Store, userID, paymentID string, charged []domain.CartLine) (store.Snapshot, error) {
	paid, err := st.MarkPaymentSucceeded()
	if err != nil {
		return store.Snapshot{}, err
	}
	s.publishPaymentStatus(ctx, userID, paymentID, paid)

	var settled store.Snapshot
	if charged == nil {
		s.logger.WarnContext(ctx, "charged lines unknown, clearing whole cart",
			slog.String("user_id", userID),
			slog.String("payment_id", paymentID),
		)
		settled, err = st.ClearCart()
	} else {
		settled, err = st.SettlePayment(charged)
	}
	if err != nil {
		return store.Snapshot{}, err
	}

	if settled.State.IsEmpty() {
		s.publishCleared(ctx, userID, settled)
	} else {
		s.publishUpdated(ctx, userID, settled)
	}
	return settled, nil
}

// rememberPending records which lines a pending payment charges, so that its
// later confirmation settles exactly those.
func (s *CartService) rememberPending(ctx context.Context, userID, paymentID string, state domain.CartState) {
	err := s.repo.SavePending(ctx, userID, repository.PendingPayment{
		PaymentID: paymentID,
		Amount:    state.TotalPrice,
		Lines:     state.Lines,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to save pending payment",
			slog.String("user_id", userID),
			slog.String("payment_id", paymentID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CartService) forgetPending(ctx context.Context, userID, paymentID string) {
	if err := s.repo.DeletePending(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete pending payment",
			slog.String("user_id", userID),
			slog.String("payment_id", paymentID),
			slog.String("error", err.Error()),
		)
	}
}

// pendingLines returns the lines charged by paymentID. A record saved before
// the backend assigned an id matches any payment. It returns nil lines when no
// matching record exists, in which case the whole cart counts as paid.
func (s *CartService) pendingLines(ctx context.Context, userID, paymentID string) ([]domain.CartLine, error) {
	p, err := s.repo.GetPending(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pending payment: %w", err)
	}
	if p.PaymentID != "" && p.PaymentID != paymentID {
		s.logger.WarnContext(ctx, "pending payment id mismatch, settling whole cart",
			slog.String("user_id", userID),
			slog.String("payment_id", paymentID),
			slog.String("pending_payment_id", p.PaymentID),
		)
		return nil, nil
	}
	if p.Lines == nil {
		return []domain.CartLine{}, nil
	}
	return p.Lines, nil
}

func (s *CartService) failPayment(ctx context.Context, st *store.Store, userID, paymentID string) (store.Snapshot, error) {
	snap, err := st.MarkPaymentFailed()
	if err != nil {
		return store.Snapshot{}, err
	}
	s.publishPaymentStatus(ctx, userID, paymentID, snap)
	return snap, nil
}

// storeFor returns the user's store, restoring it on first use.
func (s *CartService) storeFor(ctx context.Context, userID string) (*store.Store, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, apperrors.ServiceUnavailable("cart service is shutting down")
	}
	if sess, ok := s.sessions[userID]; ok {
		sess.touch(time.Now())
		s.mu.Unlock()
		s.touchSnapshot(ctx, userID)
		return sess.store, nil
	}
	s.mu.Unlock()

	st, err := s.restore(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, apperrors.ServiceUnavailable("cart service is shutting down")
	}
	// Another request may have restored the same session meanwhile.
	if sess, ok := s.sessions[userID]; ok {
		sess.touch(time.Now())
		return sess.store, nil
	}
	sess := &session{store: st}
	sess.touch(time.Now())
	sess.unsubscribe = st.Subscribe(s.persister(userID, sess))
	s.sessions[userID] = sess
	return st, nil
}

// touchSnapshot keeps the stored snapshot alive while its session is in use,
// so the in-memory cart never outlives the persisted one.
func (s *CartService) touchSnapshot(ctx context.Context, userID string) {
	if err := s.repo.Touch(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "failed to refresh cart expiry",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// EvictIdle drops sessions unused for longer than the idle timeout and
// returns how many were dropped. An evicted cart is restored from the
// repository on next use, or starts empty once its snapshot has expired.
func (s *CartService) EvictIdle(now time.Time) int {
	if s.opts.IdleTimeout <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, sess := range s.sessions {
		if sess.idleSince(now) <= s.opts.IdleTimeout {
			continue
		}
		sess.unsubscribe()
		delete(s.sessions, id)
		evicted++
	}
	if evicted > 0 {
		s.logger.Debug("evicted idle cart sessions",
			slog.Int("evicted", evicted),
			slog.Int("remaining", len(s.sessions)),
		)
	}
	return evicted
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (s *CartService) RunEviction(ctx context.Context, interval time.Duration) {
	if s.opts.IdleTimeout <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.EvictIdle(now)
		}
	}
}

// Sessions returns the number of carts held in memory.
func (s *CartService) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *CartService) restore(ctx context.Context, userID string) (*store.Store, error) {
	snap, err := s.repo.Get(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return store.New(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("restore cart: %w", err)
	}

	s.touchSnapshot(ctx, userID)
	s.logger.DebugContext(ctx, "cart restored",
		slog.String("user_id", userID),
		slog.Uint64("version", snap.Version),
	)
	return store.Restore(*snap), nil
}

// persister saves every committed snapshot. An empty idle cart is deleted.
func (s *CartService) persister(userID string, sess *session) store.Listener {
	return func(snap store.Snapshot) {
		sess.touch(time.Now())

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.SaveTimeout)
		defer cancel()

		var err error
		if snap.State.IsEmpty() && snap.State.Status == domain.PaymentIdle {
			err = s.repo.Delete(ctx, userID)
		} else {
			_, err = s.repo.Save(ctx, userID, snap)
		}
		if err != nil {
			s.logger.Error("failed to persist cart",
				slog.String("user_id", userID),
				slog.Uint64("version", snap.Version),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *CartService) view(userID string, snap store.Snapshot) *CartView {
	v := &CartView{Snapshot: snap, RecentlyAdded: []string{}}
	if s.feedback != nil {
		v.RecentlyAdded = s.feedback.ActiveFor(userID)
	}
	return v
}

func (s *CartService) publishUpdated(ctx context.Context, userID string, snap store.Snapshot) {
	if err := s.events.PublishCartUpdated(ctx, userID, snap); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CartService) publishCleared(ctx context.Context, userID string, snap store.Snapshot) {
	if err := s.events.PublishCartCleared(ctx, userID, snap.Version); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CartService) publishPaymentStatus(ctx context.Context, userID, paymentID string, snap store.Snapshot) {
	if err := s.events.PublishPaymentStatus(ctx, userID, paymentID, snap); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.payment_status event",
			slog.String("user_id", userID),
			slog.String("status", string(snap.State.Status)),
			slog.String("error", err.Error()),
		)
	}
}

func paymentRequest(userID, currency, idempotencyKey string, state domain.CartState) backend.PaymentRequest {
	lines := make([]backend.PaymentLine, len(state.Lines))
	for i, l := range state.Lines {
		lines[i] = backend.PaymentLine{
			ProductID: l.ProductID,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		}
	}
	return backend.PaymentRequest{
		IdempotencyKey: idempotencyKey,
		UserID:         userID,
		Amount:         state.TotalPrice,
		Currency:       currency,
		Lines:          lines,
	}
}
