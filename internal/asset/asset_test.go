package asset

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	a, err := Parse("12.3400 EDNA")
	require.NoError(t, err)
	assert.Equal(t, int64(123400), a.Amount)
	assert.Equal(t, Symbol{Code: "EDNA", Precision: 4}, a.Symbol)
	assert.Equal(t, "12.3400 EDNA", a.String())

	whole, err := Parse("7 TOK")
	require.NoError(t, err)
	assert.Equal(t, uint8(0), whole.Symbol.Precision)
	assert.Equal(t, "7 TOK", whole.String())
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "1.0", "1.0000 edna", "1. EDNA", "1e5 EDNA", "1.0000 TOOLONGX", "abc EDNA"} {
		_, err := Parse(raw)
		assert.Error(t, err, raw)
	}
	_, err := Parse("9999999999999999999.0000 EDNA")
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestAddRefusesMismatchedPrecision(t *testing.T) {
	a := MustParse("1.0000 EDNA")
	b := MustParse("1.00 EDNA")
	_, err := a.Add(b)
	assert.ErrorIs(t, err, ErrSymbolMismatch)

	sum, err := a.Add(MustParse("0.5000 EDNA"))
	require.NoError(t, err)
	assert.Equal(t, "1.5000 EDNA", sum.String())
}

func TestAddOverflow(t *testing.T) {
	sym := Symbol{Code: "EDNA", Precision: 4}
	_, err := Asset{Amount: MaxAmount, Symbol: sym}.Add(Asset{Amount: 1, Symbol: sym})
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestSymbolRoundTrip(t *testing.T) {
	s, err := ParseSymbol("4,EDNA")
	require.NoError(t, err)
	assert.Equal(t, "4,EDNA", s.String())
	_, err = ParseSymbol("EDNA")
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestJSONUsesTextForm(t *testing.T) {
	type holder struct {
		Fee   Asset `json:"fee"`
		Unset Asset `json:"unset"`
	}
	b, err := json.Marshal(holder{Fee: MustParse("1.0000 EDNA")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"fee":"1.0000 EDNA","unset":""}`, string(b))

	var back holder
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, MustParse("1.0000 EDNA"), back.Fee)
	assert.Equal(t, Asset{}, back.Unset)
}
