package engine

import (
	"fmt"
	"maps"
	"slices"

	"dacgov.org/internal/asset"
	"dacgov.org/internal/governance"
	"dacgov.org/internal/host"
	"dacgov.org/internal/kv"
	"dacgov.org/internal/membership"
)

// Action is one externally callable operation. Each runs inside a single
// storage transaction.
type Action interface {
	Name() string
	apply(e *Engine, call *host.Call, tx kv.Tx) (any, error)
}

// Create registers a new token symbol.
type Create struct {
	Issuer        string      `json:"issuer"`
	MaximumSupply asset.Asset `json:"maximum_supply"`
}

func (Create) Name() string { return "create" }

func (a Create) apply(e *Engine, call *host.Call, tx kv.Tx) (any, error) {
	if err := e.ledger.Create(call, tx, a.Issuer, a.MaximumSupply); err != nil {
		return nil, err
	}
	return e.ledger.GetStats(tx, a.MaximumSupply.Symbol.Code)
}

// Issue mints new units to an account.
type Issue struct {
	To       string      `json:"to"`
	Quantity asset.Asset `json:"quantity"`
	Memo     string      `json:"memo"`
}

func (Issue) Name() string { return "issue" }

func (a Issue) apply(e *Engine, call *host.Call, tx kv.Tx) (any, error) {
	if err := e.ledger.Issue(call, tx, a.To, a.Quantity, a.Memo); err != nil {
		return nil, err
	}
	return e.ledger.GetBalance(tx, a.To, a.Quantity.Symbol.Code)
}

type Transfer struct {
	From     string      `json:"from"`
	To       string      `json:"to"`
	Quantity asset.Asset `json:"quantity"`
	Memo     string      `json:"memo"`
}

func (Transfer) Name() string { return "transfer" }

func (a Transfer) apply(e *Engine, call *host.Call, tx kv.Tx) (any, error) {
	return nil, e.ledger.Transfer(call, tx, a.From, a.To, a.Quantity, a.Memo)
}

// SetFundAccount points membership dues at an account, creating the
// configuration on first use.
type SetFundAccount struct {
	Account string `json:"account"`
}

func (SetFundAccount) Name() string { return "set_fund_account" }

func (a SetFundAccount) apply(e *Engine, call *host.Call, tx kv.Tx) (any, error) {
	if err := e.settings.SetFundAccount(call, tx, a.Account); err != nil {
		return nil, err
	}
	return e.settings.Get(tx)
}

type Join struct {
	Account string      `json:"account"`
	Handle  string      `json:"handle"`
	Dues    asset.Asset `json:"dues"`
}

func (Join) Name() string { return "join" }

func (a Join) apply(e *Engine, call *host.Call, tx kv.Tx) (any, error) {
	return e.members.Join(call, tx, a.Account, a.Handle, a.Dues)
}

type Renew struct {
	Account string `json:"account"`
}

func (Renew) Name() string { return "renew" }

func (a Renew) apply(e *Engine, call *host.Call, tx kv.Tx) (any, error) {
	return e.members.Renew(call, tx, a.Account)
}

// Update changes one member attribute. Go callers set Command directly;
// wire callers send the selector form, decoded by membership.DecodeUpdate.
type Update struct {
	Account  string      `json:"account"`
	Selector uint8       `json:"selector"`
	Code     uint8       `json:"code,omitempty"`
	Text     string      `json:"text,omitempty"`
	Value    asset.Asset `json:"value,omitzero"`

	Command membership.Command `json:"-"`
}

func (Update) Name() string { return "update" }

func (a Update) apply(e *Engine, call *host.Call, tx kv.Tx) (any, error) {
	cmd := a.Command
	if cmd == nil {
		var err error
		if cmd, err = membership.DecodeUpdate(a.Selector, a.Code, a.Text, a.Value); err != nil {
			return nil, err
		}
	}
	return e.members.Update(call, tx, a.Account, cmd)
}

type Archive struct {
	Account string `json:"account"`
}

func (Archive) Name() string { return "archive" }

func (a Archive) apply(e *Engine, call *host.Call, tx kv.Tx) (any, error) {
	return e.members.Archive(call, tx, a.Account)
}

type Propose struct {
	Sponsor string `json:"sponsor"`
	Title   string `json:"title"`
	BodyRef string `json:"body_ref"`
}

func (Propose) Name() string { return "propose" }

func (a Propose) apply(e *Engine, call *host.Call, tx kv.Tx) (any, error) {
	return e.gov.Propose(call, tx, a.Sponsor, a.Title, a.BodyRef)
}

type Vote struct {
	Voter      string            `json:"voter"`
	ProposalID uint64            `json:"proposal_id"`
	Choice     governance.Choice `json:"choice"`
}

func (Vote) Name() string { return "vote" }

func (a Vote) apply(e *Engine, call *host.Call, tx kv.Tx) (any, error) {
	return e.gov.Vote(call, tx, a.Voter, a.ProposalID, a.Choice)
}

// Check closes general proposals whose voting period ended without escalation.
type Check struct{}

func (Check) Name() string { return "check" }

// CheckResult lists the proposals a sweep closed.
type CheckResult struct {
	Closed []uint64 `json:"closed"`
}

func (Check) apply(e *Engine, call *host.Call, tx kv.Tx) (any, error) {
	closed, err := e.gov.Check(call, tx)
	if err != nil {
		return nil, err
	}
	if closed == nil {
		closed = []uint64{}
	}
	return CheckResult{Closed: closed}, nil
}

// registry lists a zero value of every action keyed by name.
var registry = map[string]func() Action{
	Create{}.Name():         func() Action { return &Create{} },
	Issue{}.Name():          func() Action { return &Issue{} },
	Transfer{}.Name():       func() Action { return &Transfer{} },
	SetFundAccount{}.Name(): func() Action { return &SetFundAccount{} },
	Join{}.Name():           func() Action { return &Join{} },
	Renew{}.Name():          func() Action { return &Renew{} },
	Update{}.Name():         func() Action { return &Update{} },
	Archive{}.Name():        func() Action { return &Archive{} },
	Propose{}.Name():        func() Action { return &Propose{} },
	Vote{}.Name():           func() Action { return &Vote{} },
	Check{}.Name():          func() Action { return &Check{} },
}

// NewAction returns a pointer to an empty action of the given name, ready to
// be decoded into.
func NewAction(name string) (Action, error) {
	mk, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return mk(), nil
}

// ActionNames lists every registered action in name order.
func ActionNames() []string {
	return slices.Sorted(maps.Keys(registry))
}
