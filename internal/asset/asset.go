package asset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount bounds every representable quantity so sums of two valid amounts never overflow int64.
const MaxAmount int64 = 1<<62 - 1

// MaxPrecision is the largest number of decimal places a symbol may carry.
const MaxPrecision = 18

var (
	ErrInvalidSymbol  = errors.New("invalid symbol")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrSymbolMismatch = errors.New("symbol precision mismatch")
	ErrOverflow       = errors.New("amount out of range")
)

// Symbol names a fungible asset: an upper-case code plus a fixed decimal precision.
type Symbol struct {
	Code      string `json:"code"`
	Precision uint8  `json:"precision"`
}

// NewSymbol validates and returns a symbol.
func NewSymbol(code string, precision uint8) (Symbol, error) {
	s := Symbol{Code: code, Precision: precision}
	if !s.IsValid() {
		return Symbol{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, s.String())
	}
	return s, nil
}

// IsValid reports whether the code is 1..7 upper-case letters and the precision is in range.
func (s Symbol) IsValid() bool {
	if len(s.Code) == 0 || len(s.Code) > 7 {
		return false
	}
	for i := 0; i < len(s.Code); i++ {
		if s.Code[i] < 'A' || s.Code[i] > 'Z' {
			return false
		}
	}
	return s.Precision <= MaxPrecision
}

// String renders the symbol as "precision,CODE".
func (s Symbol) String() string {
	return strconv.Itoa(int(s.Precision)) + "," + s.Code
}

// ParseSymbol reads the "precision,CODE" form produced by String.
func ParseSymbol(raw string) (Symbol, error) {
	prec, code, ok := strings.Cut(strings.TrimSpace(raw), ",")
	if !ok {
		return Symbol{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	p, err := strconv.ParseUint(prec, 10, 8)
	if err != nil {
		return Symbol{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	return NewSymbol(code, uint8(p))
}

// Asset is a fixed-point quantity: Amount is expressed in units of 10^-Precision.
type Asset struct {
	Amount int64
	Symbol Symbol
}

// Zero returns an empty quantity of sym.
func Zero(sym Symbol) Asset { return Asset{Symbol: sym} }

// IsValid reports whether the amount is representable and the symbol well formed.
func (a Asset) IsValid() bool {
	return a.Amount >= -MaxAmount && a.Amount <= MaxAmount && a.Symbol.IsValid()
}

func (a Asset) IsPositive() bool { return a.Amount > 0 }
func (a Asset) IsZero() bool     { return a.Amount == 0 }

// SameSymbol reports whether both code and precision match.
func (a Asset) SameSymbol(b Asset) bool { return a.Symbol == b.Symbol }

// Add returns a+b, refusing mismatched symbols and out-of-range results.
func (a Asset) Add(b Asset) (Asset, error) {
	if !a.SameSymbol(b) {
		return Asset{}, fmt.Errorf("%w: %s vs %s", ErrSymbolMismatch, a.Symbol, b.Symbol)
	}
	sum := a.Amount + b.Amount
	if sum > MaxAmount || sum < -MaxAmount {
		return Asset{}, ErrOverflow
	}
	return Asset{Amount: sum, Symbol: a.Symbol}, nil
}

// Sub returns a-b with the same checks as Add.
func (a Asset) Sub(b Asset) (Asset, error) {
	return a.Add(Asset{Amount: -b.Amount, Symbol: b.Symbol})
}

// Cmp compares two assets of the same symbol. It returns ErrSymbolMismatch otherwise.
func (a Asset) Cmp(b Asset) (int, error) {
	if !a.SameSymbol(b) {
		return 0, fmt.Errorf("%w: %s vs %s", ErrSymbolMismatch, a.Symbol, b.Symbol)
	}
	switch {
	case a.Amount < b.Amount:
		return -1, nil
	case a.Amount > b.Amount:
		return 1, nil
	}
	return 0, nil
}

// String renders the asset as "1.0000 CODE".
func (a Asset) String() string {
	p := int32(a.Symbol.Precision)
	return decimal.New(a.Amount, -p).StringFixed(p) + " " + a.Symbol.Code
}

// Parse reads "<decimal> <CODE>". The precision is the number of fractional digits written,
// so "1.0000 EDNA" and "1 EDNA" are different symbols.
func Parse(raw string) (Asset, error) {
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return Asset{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	num, code := fields[0], fields[1]
	if strings.TrimLeft(strings.TrimPrefix(num, "-"), "0123456789.") != "" {
		return Asset{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	var prec int
	if _, frac, ok := strings.Cut(num, "."); ok {
		prec = len(frac)
		if prec == 0 {
			return Asset{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
	}
	if prec > MaxPrecision {
		return Asset{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	sym, err := NewSymbol(code, uint8(prec))
	if err != nil {
		return Asset{}, err
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	units := d.Shift(int32(prec))
	limit := decimal.NewFromInt(MaxAmount)
	if units.GreaterThan(limit) || units.LessThan(limit.Neg()) {
		return Asset{}, ErrOverflow
	}
	return Asset{Amount: units.IntPart(), Symbol: sym}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(raw string) Asset {
	a, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// MarshalText renders the zero Asset as an empty string so unset fields round-trip.
func (a Asset) MarshalText() ([]byte, error) {
	if a == (Asset{}) {
		return []byte{}, nil
	}
	return []byte(a.String()), nil
}

func (a *Asset) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*a = Asset{}
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
