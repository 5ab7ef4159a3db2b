// Package ledger keeps fungible asset supplies and per-owner balances.
//
// Every operation runs inside the caller's unit of work; a returned error
// means the caller must discard the whole unit.
package ledger

import (
	"errors"
	"fmt"

	"dacgov.org/internal/asset"
	"dacgov.org/internal/host"
	"dacgov.org/internal/kv"
)

type Ledger struct {
	dir host.Directory
}

func New(dir host.Directory) *Ledger {
	return &Ledger{dir: dir}
}

// Create registers a new symbol with a maximum supply. Only the contract
// account may do this.
func (l *Ledger) Create(call *host.Call, tx kv.Tx, issuer string, maxSupply asset.Asset) error {
	if err := call.RequireAdmin(); err != nil {
		return err
	}
	if !maxSupply.Symbol.IsValid() {
		return fmt.Errorf("%w: %s", asset.ErrInvalidSymbol, maxSupply.Symbol)
	}
	if !maxSupply.IsValid() {
		return fmt.Errorf("%w: invalid supply", asset.ErrInvalidAmount)
	}
	if !maxSupply.IsPositive() {
		return fmt.Errorf("%w: max-supply", ErrNonPositive)
	}
	code := maxSupply.Symbol.Code
	exists, err := kv.Exists(tx, SupplyTable, code)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrSymbolExists, code)
	}
	st := Stats{
		Supply:    asset.Zero(maxSupply.Symbol),
		MaxSupply: maxSupply,
		Issuer:    issuer,
	}
	return kv.PutJSON(tx, SupplyTable, code, st, call.Contract)
}

// Issue mints quantity to the issuer and, when to differs, moves it on with a
// regular transfer.
func (l *Ledger) Issue(call *host.Call, tx kv.Tx, to string, quantity asset.Asset, memo string) error {
	if !quantity.Symbol.IsValid() {
		return fmt.Errorf("%w: %s", asset.ErrInvalidSymbol, quantity.Symbol)
	}
	if len(memo) > MaxMemo {
		return ErrMemoTooLong
	}
	st, err := l.stats(tx, quantity.Symbol.Code)
	if err != nil {
		return err
	}
	if err := call.RequireAuth(st.Issuer); err != nil {
		return err
	}
	if !quantity.IsValid() {
		return fmt.Errorf("%w: invalid quantity", asset.ErrInvalidAmount)
	}
	if !quantity.IsPositive() {
		return ErrNonPositive
	}
	if !quantity.SameSymbol(st.Supply) {
		return fmt.Errorf("%w: %s vs %s", asset.ErrSymbolMismatch, quantity.Symbol, st.Supply.Symbol)
	}
	if quantity.Amount > st.MaxSupply.Amount-st.Supply.Amount {
		return ErrSupplyExceeded
	}

	st.Supply.Amount += quantity.Amount
	if err := kv.PutJSON(tx, SupplyTable, quantity.Symbol.Code, st, ""); err != nil {
		return err
	}
	if err := l.Credit(tx, st.Issuer, quantity, st.Issuer); err != nil {
		return err
	}
	if to != st.Issuer {
		return l.Transfer(call, tx, st.Issuer, to, quantity, memo)
	}
	return nil
}

// Transfer moves quantity between two accounts. The sender pays for a new
// balance row of the recipient.
func (l *Ledger) Transfer(call *host.Call, tx kv.Tx, from, to string, quantity asset.Asset, memo string) error {
	if from == to {
		return ErrSelfTransfer
	}
	if err := call.RequireAuth(from); err != nil {
		return err
	}
	if !l.dir.IsAccount(to) {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, to)
	}
	st, err := l.stats(tx, quantity.Symbol.Code)
	if err != nil {
		return err
	}

	call.Notify(from)
	call.Notify(to)

	if !quantity.IsValid() {
		return fmt.Errorf("%w: invalid quantity", asset.ErrInvalidAmount)
	}
	if !quantity.IsPositive() {
		return ErrNonPositive
	}
	if !quantity.SameSymbol(st.Supply) {
		return fmt.Errorf("%w: %s vs %s", asset.ErrSymbolMismatch, quantity.Symbol, st.Supply.Symbol)
	}
	if len(memo) > MaxMemo {
		return ErrMemoTooLong
	}

	if err := l.Debit(tx, from, quantity); err != nil {
		return err
	}
	return l.Credit(tx, to, quantity, from)
}

// Debit removes value from owner's balance and deletes the row once it is empty.
func (l *Ledger) Debit(tx kv.Tx, owner string, value asset.Asset) error {
	key := balanceKey(owner, value.Symbol.Code)
	bal, err := kv.GetJSON[Balance](tx, BalancesTable, key)
	if errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNoBalance, owner, value.Symbol.Code)
	}
	if err != nil {
		return err
	}
	cmp, err := bal.Balance.Cmp(value)
	if err != nil {
		return err
	}
	if cmp < 0 {
		return fmt.Errorf("%w: %s has %s", ErrOverdrawn, owner, bal.Balance)
	}
	if cmp == 0 {
		return tx.Delete(BalancesTable, key)
	}
	bal.Balance, err = bal.Balance.Sub(value)
	if err != nil {
		return err
	}
	return kv.PutJSON(tx, BalancesTable, key, bal, "")
}

// Credit adds value to owner's balance, creating the row at payer's expense.
func (l *Ledger) Credit(tx kv.Tx, owner string, value asset.Asset, payer string) error {
	key := balanceKey(owner, value.Symbol.Code)
	bal, err := kv.GetJSON[Balance](tx, BalancesTable, key)
	if errors.Is(err, kv.ErrNotFound) {
		return kv.PutJSON(tx, BalancesTable, key, Balance{Owner: owner, Balance: value}, payer)
	}
	if err != nil {
		return err
	}
	bal.Balance, err = bal.Balance.Add(value)
	if err != nil {
		return err
	}
	return kv.PutJSON(tx, BalancesTable, key, bal, "")
}

// IsRegistered reports whether a supply record exists for sym with the same precision.
func (l *Ledger) IsRegistered(tx kv.Tx, sym asset.Symbol) (bool, error) {
	st, err := l.stats(tx, sym.Code)
	if errors.Is(err, ErrUnknownSymbol) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.Supply.Symbol == sym, nil
}

// GetSupply returns the circulating supply of code.
func (l *Ledger) GetSupply(tx kv.Tx, code string) (asset.Asset, error) {
	st, err := l.stats(tx, code)
	if err != nil {
		return asset.Asset{}, err
	}
	return st.Supply, nil
}

func (l *Ledger) GetStats(tx kv.Tx, code string) (Stats, error) {
	return l.stats(tx, code)
}

// GetBalance returns owner's holding of code, or ErrNoBalance.
func (l *Ledger) GetBalance(tx kv.Tx, owner, code string) (asset.Asset, error) {
	bal, err := kv.GetJSON[Balance](tx, BalancesTable, balanceKey(owner, code))
	if errors.Is(err, kv.ErrNotFound) {
		return asset.Asset{}, fmt.Errorf("%w: %s %s", ErrNoBalance, owner, code)
	}
	if err != nil {
		return asset.Asset{}, err
	}
	return bal.Balance, nil
}

// Balances lists every non-zero holding of owner ordered by symbol code.
func (l *Ledger) Balances(tx kv.Tx, owner string) ([]asset.Asset, error) {
	var out []asset.Asset
	err := tx.Scan(BalancesTable, owner+"/", func(key string, raw []byte) error {
		bal, err := kv.Decode[Balance](raw)
		if err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, bal.Balance)
		return nil
	})
	return out, err
}

func (l *Ledger) stats(tx kv.Tx, code string) (Stats, error) {
	st, err := kv.GetJSON[Stats](tx, SupplyTable, code)
	if errors.Is(err, kv.ErrNotFound) {
		return Stats{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, code)
	}
	return st, err
}
