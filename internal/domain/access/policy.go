// Package access decides which authenticated emails may use the API.
//
// The policy is built once at startup from Config and injected into the HTTP
// layer. A static allow list is checked first, then the dynamic store.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoBackend    = errors.New("access policy has no allow list and no dynamic store")
	ErrStoreMissing = errors.New("dynamic allow list requested but no store provided")
)

// AllowListStore is a queryable allow list, typically a database table.
type AllowListStore interface {
	IsEmailAllowed(ctx context.Context, email string) (bool, error)
}

// Config selects the policy backends.
type Config struct {
	StaticAllowList []string
	UseDynamicStore bool
}

// Policy is an immutable access-control policy.
type Policy struct {
	static map[string]struct{}
	store  AllowListStore
}

// NewPolicy builds the policy. store may be nil when cfg.UseDynamicStore is
// false.
func NewPolicy(cfg Config, store AllowListStore) (*Policy, error) {
	p := &Policy{static: make(map[string]struct{}, len(cfg.StaticAllowList))}
	for _, email := range cfg.StaticAllowList {
		if e := normalizeEmail(email); e != "" {
			p.static[e] = struct{}{}
		}
	}

	if cfg.UseDynamicStore {
		if store == nil {
			return nil, ErrStoreMissing
		}
		p.store = store
	}

	if len(p.static) == 0 && p.store == nil {
		return nil, ErrNoBackend
	}
	return p, nil
}

// Allowed reports whether email may access the API. An empty email is never
// allowed. Store errors are returned to the caller, which should deny.
func (p *Policy) Allowed(ctx context.Context, email string) (bool, error) {
	e := normalizeEmail(email)
	if e == "" {
		return false, nil
	}
	if _, ok := p.static[e]; ok {
		return true, nil
	}
	if p.store == nil {
		return false, nil
	}
	ok, err := p.store.IsEmailAllowed(ctx, e)
	if err != nil {
		return false, fmt.Errorf("allow list lookup: %w", err)
	}
	return ok, nil
}

// Describe returns a short description for startup logs.
func (p *Policy) Describe() string {
	switch {
	case len(p.static) > 0 && p.store != nil:
		return fmt.Sprintf("static(%d)+dynamic", len(p.static))
	case p.store != nil:
		return "dynamic"
	default:
		return fmt.Sprintf("static(%d)", len(p.static))
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
