// Package membership keeps member records: admission against dues, renewal,
// typed updates and archival of departing members.
package membership

import (
	"errors"
	"fmt"

	"dacgov.org/internal/announce"
	"dacgov.org/internal/asset"
	"dacgov.org/internal/host"
	"dacgov.org/internal/kv"
	"dacgov.org/internal/ledger"
	"dacgov.org/internal/settings"
)

// Withdrawer removes a departing member's open participation: votes on
// proposals still collecting support and proposals they sponsored.
type Withdrawer interface {
	Withdraw(call *host.Call, tx kv.Tx, m Member) error
}

type Registry struct {
	ledger     *ledger.Ledger
	settings   *settings.Store
	sink       announce.Sink
	withdrawer Withdrawer
}

func NewRegistry(l *ledger.Ledger, s *settings.Store) *Registry {
	return &Registry{ledger: l, settings: s}
}

// SetWithdrawer wires the component that cleans up after archived members.
func (r *Registry) SetWithdrawer(w Withdrawer) { r.withdrawer = w }

// Join admits account after collecting dues into the fund account.
func (r *Registry) Join(call *host.Call, tx kv.Tx, account, handle string, dues asset.Asset) (Member, error) {
	if err := call.RequireAuth(account); err != nil {
		return Member{}, err
	}
	cfg, err := r.settings.Get(tx)
	if err != nil {
		return Member{}, err
	}
	if err := ValidHandle(handle); err != nil {
		return Member{}, err
	}
	if !cfg.AdmissionOpen {
		return Member{}, ErrAdmissionClosed
	}
	exists, err := kv.Exists(tx, Table, account)
	if err != nil {
		return Member{}, err
	}
	if exists {
		return Member{}, fmt.Errorf("%w: %s", ErrAlreadyMember, account)
	}
	if err := r.checkDues(tx, cfg, dues); err != nil {
		return Member{}, err
	}
	if err := r.collect(tx, cfg, account, dues); err != nil {
		return Member{}, err
	}

	id, err := kv.NextID(tx, Table, call.Contract)
	if err != nil {
		return Member{}, err
	}
	zero := asset.Zero(cfg.MembershipFee.Symbol)
	m := Member{
		ID:              id,
		Account:         account,
		Status:          StatusMember,
		CustodialStatus: CustodialNone,
		Handle:          handle,
		ServiceValue:    zero,
		ResearchValue:   zero,
		TotalValue:      zero,
		Balance:         zero,
		JoinedAt:        call.Now,
		RenewalDue:      call.Now.Add(cfg.MembershipTTL),
	}
	if err := kv.PutJSON(tx, Table, account, m, call.Contract); err != nil {
		return Member{}, err
	}
	if err := r.settings.AdjustMemberCount(tx, 1); err != nil {
		return Member{}, err
	}
	if _, err := r.sink.Post(call, tx, announce.NewMember, account, cfg.MembershipTTL, 0); err != nil {
		return Member{}, err
	}
	return m, nil
}

// Renew charges the membership fee again and extends renewal_due by one term.
func (r *Registry) Renew(call *host.Call, tx kv.Tx, account string) (Member, error) {
	if err := call.RequireAuth(account); err != nil {
		return Member{}, err
	}
	m, err := r.Get(tx, account)
	if err != nil {
		return Member{}, err
	}
	if m.Archived {
		return Member{}, fmt.Errorf("%w: %s", ErrArchived, account)
	}
	cfg, err := r.settings.Get(tx)
	if err != nil {
		return Member{}, err
	}
	if err := r.checkDues(tx, cfg, cfg.MembershipFee); err != nil {
		return Member{}, err
	}
	if err := r.collect(tx, cfg, account, cfg.MembershipFee); err != nil {
		return Member{}, err
	}
	m.RenewalDue = m.RenewalDue.Add(cfg.MembershipTTL)
	return m, r.Save(tx, m)
}

func (r *Registry) checkDues(tx kv.Tx, cfg settings.Config, dues asset.Asset) error {
	if !dues.IsValid() {
		return fmt.Errorf("%w: %s", asset.ErrInvalidAmount, dues)
	}
	if !dues.IsPositive() {
		return ledger.ErrNonPositive
	}
	registered, err := r.ledger.IsRegistered(tx, dues.Symbol)
	if err != nil {
		return err
	}
	if !registered {
		return fmt.Errorf("%w: %s", ledger.ErrUnknownSymbol, dues.Symbol)
	}
	cmp, err := dues.Cmp(cfg.MembershipFee)
	if err != nil {
		return err
	}
	if cmp < 0 {
		return fmt.Errorf("%w: %s < %s", ErrInsufficientDues, dues, cfg.MembershipFee)
	}
	return nil
}

// collect moves dues to the fund account; the payer of a new fund row is the member.
func (r *Registry) collect(tx kv.Tx, cfg settings.Config, account string, dues asset.Asset) error {
	if err := r.ledger.Debit(tx, account, dues); err != nil {
		return err
	}
	return r.ledger.Credit(tx, cfg.FundAccount, dues, account)
}

// Update applies one command to account's record. The member or the contract
// account may update; expired memberships are frozen until renewed.
func (r *Registry) Update(call *host.Call, tx kv.Tx, account string, cmd Command) (Member, error) {
	if cmd == nil {
		return Member{}, ErrUnknownUpdate
	}
	m, err := r.Get(tx, account)
	if err != nil {
		return Member{}, err
	}
	if err := call.RequireAny(account, call.Contract); err != nil {
		return Member{}, err
	}
	if m.Archived {
		return Member{}, fmt.Errorf("%w: %s", ErrArchived, account)
	}
	if m.Expired(call.Now) {
		return Member{}, fmt.Errorf("%w: %s", ErrExpired, account)
	}
	if err := cmd.apply(call, &m); err != nil {
		return Member{}, fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	if err := r.Save(tx, m); err != nil {
		return Member{}, err
	}
	if _, ok := cmd.(SetStatus); ok && m.Status.Leaving() && !m.Archived {
		return r.archive(call, tx, m)
	}
	return m, nil
}

// Archive closes a banned or departed member's participation. The record stays.
func (r *Registry) Archive(call *host.Call, tx kv.Tx, account string) (Member, error) {
	m, err := r.Get(tx, account)
	if err != nil {
		return Member{}, err
	}
	if err := call.RequireAny(call.Contract, account); err != nil {
		return Member{}, err
	}
	if !m.Status.Leaving() {
		return Member{}, fmt.Errorf("%w: %s is %s", ErrNotLeaving, account, m.Status)
	}
	if m.Archived {
		return Member{}, fmt.Errorf("%w: %s", ErrArchived, account)
	}
	return r.archive(call, tx, m)
}

func (r *Registry) archive(call *host.Call, tx kv.Tx, m Member) (Member, error) {
	if r.withdrawer != nil {
		if err := r.withdrawer.Withdraw(call, tx, m); err != nil {
			return Member{}, err
		}
	}
	// Withdraw may have touched the record through the registry.
	fresh, err := r.Get(tx, m.Account)
	if err != nil {
		return Member{}, err
	}
	fresh.Archived = true
	if err := r.Save(tx, fresh); err != nil {
		return Member{}, err
	}
	if err := r.settings.AdjustMemberCount(tx, -1); err != nil {
		return Member{}, err
	}
	return fresh, nil
}

// Get returns account's record or ErrNotMember.
func (r *Registry) Get(tx kv.Tx, account string) (Member, error) {
	m, err := kv.GetJSON[Member](tx, Table, account)
	if errors.Is(err, kv.ErrNotFound) {
		return Member{}, fmt.Errorf("%w: %s", ErrNotMember, account)
	}
	return m, err
}

// Active returns account's record when it may take part in governance:
// present, not expired and not archived.
func (r *Registry) Active(call *host.Call, tx kv.Tx, account string) (Member, error) {
	m, err := r.Get(tx, account)
	if err != nil {
		return Member{}, err
	}
	if m.Archived {
		return Member{}, fmt.Errorf("%w: %s", ErrArchived, account)
	}
	if m.Expired(call.Now) {
		return Member{}, fmt.Errorf("%w: %s", ErrExpired, account)
	}
	return m, nil
}

// Save overwrites an existing record.
func (r *Registry) Save(tx kv.Tx, m Member) error {
	return kv.PutJSON(tx, Table, m.Account, m, "")
}

// List returns every member record ordered by account.
func (r *Registry) List(tx kv.Tx) ([]Member, error) {
	var out []Member
	err := tx.Scan(Table, "", func(key string, raw []byte) error {
		m, err := kv.Decode[Member](raw)
		if err != nil {
			return fmt.Errorf("decode member %s: %w", key, err)
		}
		out = append(out, m)
		return nil
	})
	return out, err
}
