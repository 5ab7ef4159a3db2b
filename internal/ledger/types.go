package ledger

import (
	"errors"

	"dacgov.org/internal/asset"
)

const (
	BalancesTable = "balances"
	SupplyTable   = "supply"

	// MaxMemo is the longest memo, in bytes, accepted by issue and transfer.
	MaxMemo = 256
)

// Stats is the supply record of one symbol.
type Stats struct {
	Supply    asset.Asset `json:"supply"`
	MaxSupply asset.Asset `json:"max_supply"`
	Issuer    string      `json:"issuer"`
}

// Balance is the holding of one owner in one symbol. Rows exist only while
// the amount is non-zero.
type Balance struct {
	Owner   string      `json:"owner"`
	Balance asset.Asset `json:"balance"`
}

var (
	ErrSymbolExists   = errors.New("token with symbol already exists")
	ErrUnknownSymbol  = errors.New("token with symbol does not exist")
	ErrNoBalance      = errors.New("no balance object found")
	ErrOverdrawn      = errors.New("overdrawn balance")
	ErrSupplyExceeded = errors.New("quantity exceeds available supply")
	ErrUnknownAccount = errors.New("account does not exist")
	ErrMemoTooLong    = errors.New("memo has more than 256 bytes")
	ErrNonPositive    = errors.New("quantity must be positive")
	ErrSelfTransfer   = errors.New("cannot transfer to self")
)

func balanceKey(owner, code string) string { return owner + "/" + code }
