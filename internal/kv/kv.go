// apps/go-server/internal/kv/kv.go
//
// Two-scope key-value storage for small session markers.
//   - Ephemeral scope: lives for one client session, purged when it ends.
//   - Durable scope:   survives restarts (SQL table or Redis).
//
// Values are primitive strings under fixed keys; callers parse them.

package kv

import (
	"context"
	"net/url"
)

// Fixed keys used by the round-tracking session.
const (
	KeyResumeHole = "golf.resume_hole"
	KeyHoleCount  = "golf.hole_count"
)

// Scope names one of the two storage scopes.
type Scope string

const (
	Ephemeral Scope = "ephemeral"
	Durable   Scope = "durable"
)

// Store is a string key-value store.
// Implementations may be backed by memory (this package), SQL or Redis.
type Store interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes or replaces the value under key.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Purger is implemented by stores that can drop every key under a prefix.
type Purger interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

// Scopes pairs the ephemeral and durable stores handed to a session.
type Scopes struct {
	Ephemeral Store
	Durable   Store
}

// In returns the store for scope s.
func (sc Scopes) In(s Scope) Store {
	if s == Ephemeral {
		return sc.Ephemeral
	}
	return sc.Durable
}

// prefixed namespaces every key of an underlying store.
type prefixed struct {
	prefix string
	next   Store
}

// Prefixed returns a Store that stores key under prefix+key in s.
func Prefixed(s Store, prefix string) Store {
	return &prefixed{prefix: prefix, next: s}
}

func (p *prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.next.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key, value string) error {
	return p.next.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.next.Delete(ctx, p.prefix+key)
}

// DeletePrefix purges the whole namespace when the underlying store can.
func (p *prefixed) DeletePrefix(ctx context.Context, prefix string) error {
	if pg, ok := p.next.(Purger); ok {
		return pg.DeletePrefix(ctx, p.prefix+prefix)
	}
	return nil
}

// UserPrefix and SessionPrefix build the namespaces used by the HTTP layer.
// Ids are escaped so distinct ids never share a namespace.
func UserPrefix(userID string) string       { return "u:" + escapeID(userID) + ":" }
func SessionPrefix(sessionID string) string { return "s:" + escapeID(sessionID) + ":" }

// escapeID percent-encodes the separator (and everything else QueryEscape
// touches), so the mapping is reversible.
func escapeID(id string) string { return url.QueryEscape(id) }
