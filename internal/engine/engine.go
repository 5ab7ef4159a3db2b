// Package engine applies actions against the governance state. Each action
// runs as one storage transaction; its notifications and events leave the
// engine only after that transaction commits.
package engine

import (
	"context"
	"errors"
	"time"

	"dacgov.org/internal/announce"
	"dacgov.org/internal/audit"
	"dacgov.org/internal/governance"
	"dacgov.org/internal/host"
	"dacgov.org/internal/ids"
	"dacgov.org/internal/kv"
	"dacgov.org/internal/ledger"
	"dacgov.org/internal/membership"
	"dacgov.org/internal/obs"
	"dacgov.org/internal/params"
	"dacgov.org/internal/settings"
	"dacgov.org/internal/stream"
)

var ErrUnknownAction = errors.New("unknown action")

// Publisher receives committed events.
type Publisher interface {
	Publish(evt stream.Event)
}

type Engine struct {
	store    kv.Store
	genesis  params.Genesis
	clock    func() time.Time
	policy   governance.Policy
	events   Publisher
	notifier host.Notifier

	ledger   *ledger.Ledger
	settings *settings.Store
	members  *membership.Registry
	gov      *governance.Engine
	sink     announce.Sink
}

type Option func(*Engine)

// WithClock overrides the time source used to stamp calls.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// WithPolicy replaces the escalation rule.
func WithPolicy(p governance.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithPublisher delivers committed events, typically to a stream.Stream.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.events = p }
}

// WithNotifier delivers recipient notifications after commit.
func WithNotifier(n host.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// New wires the components over store using the genesis parameters.
func New(store kv.Store, g params.Genesis, opts ...Option) (*Engine, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{store: store, genesis: g, clock: time.Now}
	for _, opt := range opts {
		opt(e)
	}

	dir := g.Directory()
	e.ledger = ledger.New(dir)
	e.settings = settings.New(dir, g.Defaults)
	e.members = membership.NewRegistry(e.ledger, e.settings)
	e.gov = governance.New(e.members, e.settings, e.policy)
	e.members.SetWithdrawer(e.gov)
	return e, nil
}

// Contract is the account holding administrative authority.
func (e *Engine) Contract() string { return e.genesis.Contract }

// Result is what a committed action produced.
type Result struct {
	CallID   string       `json:"call_id"`
	Action   string       `json:"action"`
	Output   any          `json:"result,omitempty"`
	Events   []host.Event `json:"events,omitempty"`
	Notified []string     `json:"notified,omitempty"`
}

// Apply runs a under the given authorities. Either every write the action
// makes is committed or none is.
func (e *Engine) Apply(ctx context.Context, auth []string, a Action) (Result, error) {
	if a == nil {
		return Result{}, ErrUnknownAction
	}
	name := a.Name()
	now := e.clock()
	call := host.NewCall(ids.At(now), now, e.genesis.Contract, auth...)
	start := time.Now()

	var out any
	err := e.store.Update(ctx, func(tx kv.Tx) error {
		call.Reset()
		var err error
		out, err = a.apply(e, call, tx)
		return err
	})

	fields := map[string]any{
		"call_id": call.ID,
		"action":  name,
		"caller":  call.Caller(),
	}
	if err != nil {
		call.Reset()
		obs.ObserveAction(name, "rejected", time.Since(start))
		fields["error"] = err.Error()
		_ = audit.LogEvent(ctx, "dac."+name+".rejected", fields)
		return Result{CallID: call.ID, Action: name}, err
	}
	obs.ObserveAction(name, "applied", time.Since(start))

	res := Result{
		CallID:   call.ID,
		Action:   name,
		Output:   out,
		Events:   call.Events(),
		Notified: call.Notified(),
	}
	if vr, ok := out.(governance.VoteResult); ok && vr.Escalated {
		obs.IncEscalations()
		fields["escalated"] = vr.Proposal.ID
	}
	e.publish(call, res)
	fields["events"] = len(res.Events)
	_ = audit.LogEvent(ctx, "dac."+name+".applied", fields)
	return res, nil
}

func (e *Engine) publish(call *host.Call, res Result) {
	for _, ev := range res.Events {
		if a, ok := ev.Data.(announce.Announcement); ok && ev.Kind == announce.EventKind {
			obs.IncAnnouncements(a.Kind.String())
		}
		if e.events != nil {
			e.events.Publish(stream.Event{
				CallID:    res.CallID,
				Action:    res.Action,
				Kind:      ev.Kind,
				Data:      ev.Data,
				Timestamp: call.Now,
			})
		}
	}
	for _, account := range res.Notified {
		if e.notifier != nil {
			e.notifier.Notify(account)
		}
		if e.events != nil {
			e.events.Publish(stream.Event{
				CallID:    res.CallID,
				Action:    res.Action,
				Kind:      "notify",
				Data:      map[string]string{"account": account},
				Timestamp: call.Now,
			})
		}
	}
}

// RunSweeper applies Check every interval until ctx ends. Failures are
// logged and the sweep keeps going.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := e.Apply(ctx, nil, Check{})
			if err != nil {
				if errors.Is(err, settings.ErrNotConfigured) {
					continue
				}
				obs.Log("error", "sweep_failed", obs.Fields{"error": err.Error()})
				continue
			}
			if cr, ok := res.Output.(CheckResult); ok && len(cr.Closed) > 0 {
				obs.Log("info", "sweep_closed", obs.Fields{"call_id": res.CallID, "closed": cr.Closed})
			}
		}
	}
}
