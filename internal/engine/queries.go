package engine

import (
	"context"

	"dacgov.org/internal/announce"
	"dacgov.org/internal/asset"
	"dacgov.org/internal/governance"
	"dacgov.org/internal/kv"
	"dacgov.org/internal/ledger"
	"dacgov.org/internal/membership"
	"dacgov.org/internal/settings"
)

func view[T any](ctx context.Context, e *Engine, fn func(tx kv.Tx) (T, error)) (T, error) {
	var out T
	err := e.store.View(ctx, func(tx kv.Tx) error {
		var err error
		out, err = fn(tx)
		return err
	})
	return out, err
}

func (e *Engine) Supply(ctx context.Context, code string) (asset.Asset, error) {
	return view(ctx, e, func(tx kv.Tx) (asset.Asset, error) { return e.ledger.GetSupply(tx, code) })
}

func (e *Engine) Stats(ctx context.Context, code string) (ledger.Stats, error) {
	return view(ctx, e, func(tx kv.Tx) (ledger.Stats, error) { return e.ledger.GetStats(tx, code) })
}

func (e *Engine) Balance(ctx context.Context, owner, code string) (asset.Asset, error) {
	return view(ctx, e, func(tx kv.Tx) (asset.Asset, error) { return e.ledger.GetBalance(tx, owner, code) })
}

// Balances lists every symbol owner holds.
func (e *Engine) Balances(ctx context.Context, owner string) ([]asset.Asset, error) {
	return view(ctx, e, func(tx kv.Tx) ([]asset.Asset, error) { return e.ledger.Balances(tx, owner) })
}

func (e *Engine) Config(ctx context.Context) (settings.Config, error) {
	return view(ctx, e, e.settings.Get)
}

func (e *Engine) Member(ctx context.Context, account string) (membership.Member, error) {
	return view(ctx, e, func(tx kv.Tx) (membership.Member, error) { return e.members.Get(tx, account) })
}

func (e *Engine) Members(ctx context.Context) ([]membership.Member, error) {
	return view(ctx, e, e.members.List)
}

func (e *Engine) Proposal(ctx context.Context, id uint64) (governance.Proposal, error) {
	return view(ctx, e, func(tx kv.Tx) (governance.Proposal, error) { return e.gov.Get(tx, id) })
}

// Proposals lists proposals in the given status, or all of them for status 0.
func (e *Engine) Proposals(ctx context.Context, status governance.Status) ([]governance.Proposal, error) {
	return view(ctx, e, func(tx kv.Tx) ([]governance.Proposal, error) { return e.gov.List(tx, status) })
}

func (e *Engine) Vote(ctx context.Context, voter string, id uint64) (governance.Vote, error) {
	return view(ctx, e, func(tx kv.Tx) (governance.Vote, error) { return e.gov.GetVote(tx, voter, id) })
}

func (e *Engine) VotesBy(ctx context.Context, voter string) ([]governance.Vote, error) {
	return view(ctx, e, func(tx kv.Tx) ([]governance.Vote, error) { return e.gov.VotesBy(tx, voter) })
}

// Announcements pages through the feed, oldest first, starting after id after.
func (e *Engine) Announcements(ctx context.Context, after uint64, limit int) ([]announce.Announcement, error) {
	return view(ctx, e, func(tx kv.Tx) ([]announce.Announcement, error) { return e.sink.List(tx, after, limit) })
}

// Usage reports the storage bytes charged to payer.
func (e *Engine) Usage(ctx context.Context, payer string) (int64, error) {
	return e.store.Usage(ctx, payer)
}
