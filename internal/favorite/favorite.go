// Package favorite keeps each user's favorite products and toggles them
// optimistically against the backend.
package favorite

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dralsallum/theKnot-sub000/internal/optimistic"
	apperrors "github.com/dralsallum/theKnot-sub000/pkg/errors"
)

var togglesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "favorite_toggles_total",
		Help: "Favorite toggles by outcome",
	},
	[]string{"result"},
)

// Remote is the backend surface the favorites need.
type Remote interface {
	ListFavorites(ctx context.Context, userID string) ([]string, error)
	AddFavorite(ctx context.Context, userID, productID string) error
	RemoveFavorite(ctx context.Context, userID, productID string) error
}

// Service holds favorites per user. Only one toggle per user and product can
// be in flight at a time.
type Service struct {
	remote Remote
	logger *slog.Logger

	mu       sync.Mutex
	sets     map[string][]string
	inflight map[string]struct{}
}

// NewService creates an empty favorites service.
func NewService(remote Remote, logger *slog.Logger) *Service {
	return &Service{
		remote:   remote,
		logger:   logger,
		sets:     make(map[string][]string),
		inflight: make(map[string]struct{}),
	}
}

// List returns the user's favorites in the order they were added.
func (s *Service) List(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sets[userID])
}

// IsFavorite reports whether productID is currently a favorite.
func (s *Service) IsFavorite(userID, productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.sets[userID], productID)
}

// Sync replaces the local favorites with the backend's list.
func (s *Service) Sync(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.remote.ListFavorites(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sync favorites: %w", err)
	}

	deduped := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(deduped, id) {
			deduped = append(deduped, id)
		}
	}

	s.mu.Lock()
	s.sets[userID] = deduped
	s.mu.Unlock()
	return slices.Clone(deduped), nil
}

// Toggle flips productID for the user and confirms it with the backend. On a
// backend failure the local change is undone and the error returned. The
// result reports whether the product is a favorite afterwards.
func (s *Service) Toggle(ctx context.Context, userID, productID string) (bool, error) {
	if strings.TrimSpace(productID) == "" {
		togglesTotal.WithLabelValues("rejected").Inc()
		return false, apperrors.InvalidInput("product_id is required")
	}

	key := userID + "/" + productID
	var (
		added    bool
		index    int
		acquired bool
	)
	defer func() {
		if acquired {
			s.mu.Lock()
			delete(s.inflight, key)
			s.mu.Unlock()
		}
	}()

	res := optimistic.Execute(ctx, optimistic.Command[bool]{
		Apply: func() (bool, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, busy := s.inflight[key]; busy {
				return false, apperrors.Conflict("favorite toggle already in progress")
			}
			s.inflight[key] = struct{}{}
			acquired = true

			set := s.sets[userID]
			index = slices.Index(set, productID)
			if index >= 0 {
				s.sets[userID] = slices.Delete(slices.Clone(set), index, index+1)
				added = false
			} else {
				s.sets[userID] = append(slices.Clone(set), productID)
				added = true
			}
			return added, nil
		},
		Remote: func(ctx context.Context) error {
			if added {
				return s.remote.AddFavorite(ctx, userID, productID)
			}
			return s.remote.RemoveFavorite(ctx, userID, productID)
		},
		Revert: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			set := s.sets[userID]
			if added {
				if i := slices.Index(set, productID); i >= 0 {
					s.sets[userID] = slices.Delete(slices.Clone(set), i, i+1)
				}
				return
			}
			if !slices.Contains(set, productID) {
				s.sets[userID] = slices.Insert(slices.Clone(set), min(index, len(set)), productID)
			}
		},
	})

	switch {
	case res.IsOk():
		togglesTotal.WithLabelValues("ok").Inc()
		s.logger.InfoContext(ctx, "favorite toggled",
			slog.String("user_id", userID),
			slog.String("product_id", productID),
			slog.Bool("favorite", res.Value()),
		)
		return res.Value(), nil
	case res.RolledBack():
		togglesTotal.WithLabelValues("rolled_back").Inc()
		s.logger.WarnContext(ctx, "favorite toggle rolled back",
			slog.String("user_id", userID),
			slog.String("product_id", productID),
			slog.String("error", res.Err().Error()),
		)
		return !added, res.Err()
	default:
		togglesTotal.WithLabelValues("rejected").Inc()
		return s.IsFavorite(userID, productID), res.Err()
	}
}
