// Package optimistic runs a local change ahead of its remote confirmation and
// reverts it when the remote call fails.
package optimistic

import (
	"context"
	"errors"
	"fmt"
)

// Result is either a value (Ok) or an error (Err). An Err records whether
// the local change was rolled back.
type Result[T any] struct {
	value      T
	err        error
	rolledBack bool
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Err wraps a failure.
func Err[T any](err error, rolledBack bool) Result[T] {
	return Result[T]{err: err, rolledBack: rolledBack}
}

func (r Result[T]) IsOk() bool       { return r.err == nil }
func (r Result[T]) Value() T         { return r.value }
func (r Result[T]) Err() error       { return r.err }
func (r Result[T]) RolledBack() bool { return r.rolledBack }

// Unwrap returns the value and error as a Go pair.
func (r Result[T]) Unwrap() (T, error) {
	return r.value, r.err
}

// Command describes one optimistic change.
//
// Apply mutates local state and returns the value to expose. Remote confirms
// the change with the backend. Revert undoes Apply and is called only when
// Remote fails.
type Command[T any] struct {
	Apply  func() (T, error)
	Remote func(ctx context.Context) error
	Revert func()
}

// ErrRevertPanicked is joined to the remote error when Revert panics.
var ErrRevertPanicked = errors.New("optimistic revert panicked")

// Execute applies cmd locally, then confirms it remotely. A failing Apply
// returns Err without calling Remote. A failing Remote triggers Revert and
// returns Err with RolledBack set.
func Execute[T any](ctx context.Context, cmd Command[T]) Result[T] {
	v, err := cmd.Apply()
	if err != nil {
		return Err[T](fmt.Errorf("apply: %w", err), false)
	}

	if cmd.Remote == nil {
		return Ok(v)
	}
	remoteErr := cmd.Remote(ctx)
	if remoteErr == nil {
		return Ok(v)
	}

	if cmd.Revert == nil {
		return Err[T](remoteErr, false)
	}
	if perr := revert(cmd.Revert); perr != nil {
		return Err[T](errors.Join(remoteErr, perr), false)
	}
	return Err[T](remoteErr, true)
}

func revert(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRevertPanicked, r)
		}
	}()
	fn()
	return nil
}
