package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrExhausted is returned when every member of a [Group] failed or was
// rejected by its breaker.
var ErrExhausted = errors.New("resilience: all providers failed")

type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group orders a primary and any number of fallbacks of the same provider
// type. Each member carries its own breaker; members whose breaker is open
// are skipped without a call.
type Group[T any] struct {
	members []member[T]
	breaker BreakerConfig
}

// NewGroup creates a group with primary as its first member. The breaker
// config is cloned for every member, with the member name substituted.
func NewGroup[T any](primaryName string, primary T, breaker BreakerConfig) *Group[T] {
	g := &Group[T]{breaker: breaker}
	g.Add(primaryName, primary)
	return g
}

// Add appends a fallback, tried after every previously added member.
func (g *Group[T]) Add(name string, value T) {
	cfg := g.breaker
	cfg.Name = name
	g.members = append(g.members, member[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
}

// Primary returns the first member's value.
func (g *Group[T]) Primary() T {
	return g.members[0].value
}

// Do runs fn against each member in order until one succeeds.
func (g *Group[T]) Do(fn func(T) error) error {
	_, err := DoResult(g, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// DoResult runs fn against each member in order until one succeeds and
// returns its result. It is a package-level function because methods cannot
// introduce new type parameters.
func DoResult[T, R any](g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range g.members {
		m := &g.members[i]
		var result R
		err := m.breaker.Do(func() error {
			var callErr error
			result, callErr = fn(m.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping provider, breaker open", "provider", m.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", m.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}
