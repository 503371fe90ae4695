package favorite

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dralsallum/theKnot-sub000/pkg/errors"
)

// ============================================================================
// Mocks
// ============================================================================

type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRemote) AddFavorite(ctx context.Context, userID, productID string) error {
	return m.Called(ctx, userID, productID).Error(0)
}

func (m *mockRemote) RemoveFavorite(ctx context.Context, userID, productID string) error {
	return m.Called(ctx, userID, productID).Error(0)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setup() (*Service, *mockRemote) {
	remote := new(mockRemote)
	return NewService(remote, newTestLogger()), remote
}

// ============================================================================
// Tests
// ============================================================================

func TestToggle_AddsThenRemoves(t *testing.T) {
	svc, remote := setup()
	ctx := context.Background()
	remote.On("AddFavorite", mock.Anything, "bride-1", "veil").Return(nil).Once()
	remote.On("RemoveFavorite", mock.Anything, "bride-1", "veil").Return(nil).Once()

	on, err := svc.Toggle(ctx, "bride-1", "veil")
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, []string{"veil"}, svc.List("bride-1"))

	on, err = svc.Toggle(ctx, "bride-1", "veil")
	require.NoError(t, err)
	assert.False(t, on)
	assert.Empty(t, svc.List("bride-1"))

	remote.AssertExpectations(t)
}

func TestToggle_AddFailureRollsBack(t *testing.T) {
	svc, remote := setup()
	boom := apperrors.ServiceUnavailable("planner-api down")
	remote.On("AddFavorite", mock.Anything, "bride-1", "cake").Return(boom)

	on, err := svc.Toggle(context.Background(), "bride-1", "cake")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	assert.False(t, on)
	assert.False(t, svc.IsFavorite("bride-1", "cake"))
}

func TestToggle_RemoveFailureRestoresPosition(t *testing.T) {
	svc, remote := setup()
	remote.On("ListFavorites", mock.Anything, "bride-1").Return([]string{"a", "b", "c"}, nil)
	remote.On("RemoveFavorite", mock.Anything, "bride-1", "b").Return(errors.New("timeout"))
	_, err := svc.Sync(context.Background(), "bride-1")
	require.NoError(t, err)

	on, err := svc.Toggle(context.Background(), "bride-1", "b")

	require.Error(t, err)
	assert.True(t, on)
	assert.Equal(t, []string{"a", "b", "c"}, svc.List("bride-1"))
}

func TestToggle_RejectsEmptyProduct(t *testing.T) {
	svc, remote := setup()

	_, err := svc.Toggle(context.Background(), "bride-1", " ")

	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	remote.AssertNotCalled(t, "AddFavorite", mock.Anything, mock.Anything, mock.Anything)
}

func TestToggle_ConcurrentSameProductIsConflict(t *testing.T) {
	svc, remote := setup()
	release := make(chan struct{})
	started := make(chan struct{})
	remote.On("AddFavorite", mock.Anything, "bride-1", "dress").Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Toggle(context.Background(), "bride-1", "dress")
		done <- err
	}()
	<-started

	on, err := svc.Toggle(context.Background(), "bride-1", "dress")
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.True(t, on, "the first toggle's optimistic state is visible")

	close(release)
	require.NoError(t, <-done)
	assert.True(t, svc.IsFavorite("bride-1", "dress"))

	remote.On("RemoveFavorite", mock.Anything, "bride-1", "dress").Return(nil).Once()
	on, err = svc.Toggle(context.Background(), "bride-1", "dress")
	require.NoError(t, err)
	assert.False(t, on)
}

func TestSync_ReplacesAndDedupes(t *testing.T) {
	svc, remote := setup()
	remote.On("AddFavorite", mock.Anything, "u", "stale").Return(nil)
	remote.On("ListFavorites", mock.Anything, "u").Return([]string{"x", "y", "x"}, nil)

	_, err := svc.Toggle(context.Background(), "u", "stale")
	require.NoError(t, err)

	got, err := svc.Sync(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, got)
	assert.Equal(t, []string{"x", "y"}, svc.List("u"))
}

func TestSync_ErrorKeepsLocalState(t *testing.T) {
	svc, remote := setup()
	remote.On("AddFavorite", mock.Anything, "u", "keep").Return(nil)
	remote.On("ListFavorites", mock.Anything, "u").Return(nil, errors.New("down"))
	_, _ = svc.Toggle(context.Background(), "u", "keep")

	_, err := svc.Sync(context.Background(), "u")

	require.Error(t, err)
	assert.Equal(t, []string{"keep"}, svc.List("u"))
}

func TestList_IsolatedPerUserAndCopied(t *testing.T) {
	svc, remote := setup()
	remote.On("AddFavorite", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	_, _ = svc.Toggle(context.Background(), "a", "p1")
	_, _ = svc.Toggle(context.Background(), "b", "p2")

	list := svc.List("a")
	list[0] = "mutated"

	assert.Equal(t, []string{"p1"}, svc.List("a"))
	assert.Equal(t, []string{"p2"}, svc.List("b"))
	assert.Nil(t, svc.List("nobody"))
}
