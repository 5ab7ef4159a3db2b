// Package host models what the execution host hands the engine for one call:
// the caller's authorizations, the call time, and places to record
// notifications and events that are released only after the call commits.
package host

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

var ErrUnauthorized = errors.New("missing required authority")

// Event is something a call produced for outside observers.
type Event struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

// Call is the execution context of a single action.
type Call struct {
	ID       string
	Now      time.Time
	Auth     []string
	Contract string

	notified []string
	events   []Event
}

// NewCall builds a call context. Contract names the account that holds
// administrative authority.
func NewCall(id string, now time.Time, contract string, auth ...string) *Call {
	return &Call{ID: id, Now: now.UTC(), Contract: contract, Auth: auth}
}

func (c *Call) HasAuth(identity string) bool {
	return identity != "" && slices.Contains(c.Auth, identity)
}

// RequireAuth fails unless the call carries identity's authority.
func (c *Call) RequireAuth(identity string) error {
	if !c.HasAuth(identity) {
		return fmt.Errorf("%w of %s", ErrUnauthorized, identity)
	}
	return nil
}

// RequireAdmin fails unless the call carries the contract account's authority.
func (c *Call) RequireAdmin() error {
	return c.RequireAuth(c.Contract)
}

func (c *Call) IsAdmin() bool { return c.HasAuth(c.Contract) }

// RequireAny succeeds when at least one identity authorized the call.
func (c *Call) RequireAny(identities ...string) error {
	for _, id := range identities {
		if c.HasAuth(id) {
			return nil
		}
	}
	return fmt.Errorf("%w of any of %v", ErrUnauthorized, identities)
}

// Caller is the first authorizing identity, or empty.
func (c *Call) Caller() string {
	if len(c.Auth) == 0 {
		return ""
	}
	return c.Auth[0]
}

// Notify records that account should be told about this call.
func (c *Call) Notify(account string) {
	if !slices.Contains(c.notified, account) {
		c.notified = append(c.notified, account)
	}
}

func (c *Call) Emit(kind string, data any) {
	c.events = append(c.events, Event{Kind: kind, Data: data})
}

func (c *Call) Notified() []string { return slices.Clone(c.notified) }

func (c *Call) Events() []Event { return slices.Clone(c.events) }

// Reset drops everything recorded so far. Used when a call is rolled back.
func (c *Call) Reset() {
	c.notified = nil
	c.events = nil
}

// Notifier receives recipient notifications.
type Notifier interface {
	Notify(account string)
}

// Directory answers whether a name is a known account.
type Directory interface {
	IsAccount(name string) bool
}

// Accounts is a Directory backed by an explicit set of names.
type Accounts struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

func NewAccounts(names ...string) *Accounts {
	a := &Accounts{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		a.names[n] = struct{}{}
	}
	return a
}

func (a *Accounts) Add(name string) {
	a.mu.Lock()
	a.names[name] = struct{}{}
	a.mu.Unlock()
}

func (a *Accounts) IsAccount(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.names[name]
	return ok
}

// NameRule accepts any syntactically valid account name: 1 to 12
// characters from a-z, 1-5 and '.', not ending in '.'.
type NameRule struct{}

func (NameRule) IsAccount(name string) bool { return ValidName(name) }

func ValidName(name string) bool {
	if name == "" || len(name) > 12 || name[len(name)-1] == '.' {
		return false
	}
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '1' && ch <= '5', ch == '.':
		default:
			return false
		}
	}
	return true
}
