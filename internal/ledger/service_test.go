package ledger

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dacgov.org/internal/asset"
	"dacgov.org/internal/host"
	"dacgov.org/internal/kv"
)

const contract = "dac"

type fixture struct {
	store *kv.Memory
	led   *Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		store: kv.NewMemory(),
		led:   New(host.NewAccounts(contract, "alice", "bob", "carol")),
	}
}

func (f *fixture) apply(auth string, fn func(*host.Call, kv.Tx) error) (*host.Call, error) {
	call := host.NewCall("test", time.Unix(1_700_000_000, 0), contract, auth)
	err := f.store.Update(context.Background(), func(tx kv.Tx) error { return fn(call, tx) })
	return call, err
}

func (f *fixture) create(t *testing.T, issuer, max string) {
	t.Helper()
	_, err := f.apply(contract, func(c *host.Call, tx kv.Tx) error {
		return f.led.Create(c, tx, issuer, asset.MustParse(max))
	})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, owner, code string) (asset.Asset, error) {
	t.Helper()
	var out asset.Asset
	err := f.store.View(context.Background(), func(tx kv.Tx) error {
		var err error
		out, err = f.led.GetBalance(tx, owner, code)
		return err
	})
	return out, err
}

func (f *fixture) supply(t *testing.T, code string) asset.Asset {
	t.Helper()
	var out asset.Asset
	require.NoError(t, f.store.View(context.Background(), func(tx kv.Tx) error {
		var err error
		out, err = f.led.GetSupply(tx, code)
		return err
	}))
	return out
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	f.create(t, "alice", "1000.0000 EDNA")

	_, err := f.apply(contract, func(c *host.Call, tx kv.Tx) error {
		return f.led.Create(c, tx, "bob", asset.MustParse("5.00 EDNA"))
	})
	assert.ErrorIs(t, err, ErrSymbolExists)

	_, err = f.apply("alice", func(c *host.Call, tx kv.Tx) error {
		return f.led.Create(c, tx, "alice", asset.MustParse("5.00 GOV"))
	})
	assert.ErrorIs(t, err, host.ErrUnauthorized)

	_, err = f.apply(contract, func(c *host.Call, tx kv.Tx) error {
		return f.led.Create(c, tx, "alice", asset.MustParse("0.00 GOV"))
	})
	assert.ErrorIs(t, err, ErrNonPositive)

	assert.Equal(t, "0.0000 EDNA", f.supply(t, "EDNA").String())
}

func TestIssueToSelfAndOther(t *testing.T) {
	f := newFixture(t)
	f.create(t, "alice", "1000.0000 EDNA")

	call, err := f.apply("alice", func(c *host.Call, tx kv.Tx) error {
		return f.led.Issue(c, tx, "alice", asset.MustParse("100.0000 EDNA"), "mint")
	})
	require.NoError(t, err)
	assert.Empty(t, call.Notified(), "issue to the issuer moves nothing")

	call, err = f.apply("alice", func(c *host.Call, tx kv.Tx) error {
		return f.led.Issue(c, tx, "bob", asset.MustParse("40.0000 EDNA"), "grant")
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, call.Notified())

	a, err := f.balance(t, "alice", "EDNA")
	require.NoError(t, err)
	b, err := f.balance(t, "bob", "EDNA")
	require.NoError(t, err)
	assert.Equal(t, "100.0000 EDNA", a.String())
	assert.Equal(t, "40.0000 EDNA", b.String())
	assert.Equal(t, "140.0000 EDNA", f.supply(t, "EDNA").String())

	usage, err := f.store.Usage(context.Background(), "alice")
	require.NoError(t, err)
	assert.Positive(t, usage, "the issuer pays for its own row and for the recipient's")
	usage, err = f.store.Usage(context.Background(), "bob")
	require.NoError(t, err)
	assert.Zero(t, usage)
}

func TestIssueValidation(t *testing.T) {
	f := newFixture(t)
	f.create(t, "alice", "10.0000 EDNA")

	cases := []struct {
		name string
		auth string
		to   string
		qty  string
		memo string
		want error
	}{
		{"wrong issuer", "bob", "bob", "1.0000 EDNA", "", host.ErrUnauthorized},
		{"unknown symbol", "alice", "alice", "1.0000 GOV", "", ErrUnknownSymbol},
		{"precision mismatch", "alice", "alice", "1.00 EDNA", "", asset.ErrSymbolMismatch},
		{"zero", "alice", "alice", "0.0000 EDNA", "", ErrNonPositive},
		{"negative", "alice", "alice", "-1.0000 EDNA", "", ErrNonPositive},
		{"memo", "alice", "alice", "1.0000 EDNA", strings.Repeat("m", MaxMemo+1), ErrMemoTooLong},
		{"exceeds", "alice", "alice", "10.0001 EDNA", "", ErrSupplyExceeded},
		{"bad recipient", "alice", "zed", "1.0000 EDNA", "", ErrUnknownAccount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.apply(tc.auth, func(c *host.Call, tx kv.Tx) error {
				return f.led.Issue(c, tx, tc.to, asset.MustParse(tc.qty), tc.memo)
			})
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.True(t, f.supply(t, "EDNA").IsZero(), "failed issues leave supply untouched")
	_, err := f.balance(t, "alice", "EDNA")
	assert.ErrorIs(t, err, ErrNoBalance)
}

func TestTransferRoundTripAndZeroRowDeletion(t *testing.T) {
	f := newFixture(t)
	f.create(t, "alice", "1000.0000 EDNA")
	_, err := f.apply("alice", func(c *host.Call, tx kv.Tx) error {
		return f.led.Issue(c, tx, "alice", asset.MustParse("10.0000 EDNA"), "")
	})
	require.NoError(t, err)

	q := asset.MustParse("10.0000 EDNA")
	_, err = f.apply("alice", func(c *host.Call, tx kv.Tx) error {
		return f.led.Transfer(c, tx, "alice", "bob", q, "there")
	})
	require.NoError(t, err)

	_, err = f.balance(t, "alice", "EDNA")
	assert.ErrorIs(t, err, ErrNoBalance, "emptied balance row is deleted")

	_, err = f.apply("bob", func(c *host.Call, tx kv.Tx) error {
		return f.led.Transfer(c, tx, "bob", "alice", q, "back")
	})
	require.NoError(t, err)

	a, err := f.balance(t, "alice", "EDNA")
	require.NoError(t, err)
	assert.Equal(t, q, a, "row recreated with the original amount")
	_, err = f.balance(t, "bob", "EDNA")
	assert.ErrorIs(t, err, ErrNoBalance)
	assert.Equal(t, q, f.supply(t, "EDNA"))
}

func TestTransferValidation(t *testing.T) {
	f := newFixture(t)
	f.create(t, "alice", "1000.0000 EDNA")
	_, err := f.apply("alice", func(c *host.Call, tx kv.Tx) error {
		return f.led.Issue(c, tx, "alice", asset.MustParse("5.0000 EDNA"), "")
	})
	require.NoError(t, err)

	cases := []struct {
		name     string
		auth     string
		from, to string
		qty      string
		want     error
	}{
		{"self", "alice", "alice", "alice", "1.0000 EDNA", ErrSelfTransfer},
		{"no auth", "bob", "alice", "bob", "1.0000 EDNA", host.ErrUnauthorized},
		{"unknown account", "alice", "alice", "zed", "1.0000 EDNA", ErrUnknownAccount},
		{"unknown symbol", "alice", "alice", "bob", "1.0000 GOV", ErrUnknownSymbol},
		{"overdrawn", "alice", "alice", "bob", "6.0000 EDNA", ErrOverdrawn},
		{"no balance", "bob", "bob", "alice", "1.0000 EDNA", ErrNoBalance},
		{"precision", "alice", "alice", "bob", "1.00 EDNA", asset.ErrSymbolMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.apply(tc.auth, func(c *host.Call, tx kv.Tx) error {
				return f.led.Transfer(c, tx, tc.from, tc.to, asset.MustParse(tc.qty), "")
			})
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestSupplyConservation(t *testing.T) {
	f := newFixture(t)
	f.create(t, "alice", "100000.0000 EDNA")
	owners := []string{"alice", "bob", "carol"}
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 300; i++ {
		amount := asset.Asset{Amount: rng.Int63n(50_0000) + 1, Symbol: asset.Symbol{Code: "EDNA", Precision: 4}}
		if rng.Intn(3) == 0 {
			to := owners[rng.Intn(len(owners))]
			_, _ = f.apply("alice", func(c *host.Call, tx kv.Tx) error {
				return f.led.Issue(c, tx, to, amount, "")
			})
			continue
		}
		from := owners[rng.Intn(len(owners))]
		to := owners[rng.Intn(len(owners))]
		_, _ = f.apply(from, func(c *host.Call, tx kv.Tx) error {
			return f.led.Transfer(c, tx, from, to, amount, "")
		})

		var sum int64
		for _, o := range owners {
			b, err := f.balance(t, o, "EDNA")
			if errors.Is(err, ErrNoBalance) {
				continue
			}
			require.NoError(t, err)
			require.Positive(t, b.Amount)
			sum += b.Amount
		}
		require.Equal(t, f.supply(t, "EDNA").Amount, sum, "step %d", i)
	}
}

func TestBalancesListing(t *testing.T) {
	f := newFixture(t)
	f.create(t, "alice", "100.0000 EDNA")
	f.create(t, "alice", "100.00 GOV")
	_, err := f.apply("alice", func(c *host.Call, tx kv.Tx) error {
		if err := f.led.Issue(c, tx, "alice", asset.MustParse("1.0000 EDNA"), ""); err != nil {
			return err
		}
		return f.led.Issue(c, tx, "alice", asset.MustParse("2.00 GOV"), "")
	})
	require.NoError(t, err)

	require.NoError(t, f.store.View(context.Background(), func(tx kv.Tx) error {
		got, err := f.led.Balances(tx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []asset.Asset{asset.MustParse("1.0000 EDNA"), asset.MustParse("2.00 GOV")}, got)

		ok, err := f.led.IsRegistered(tx, asset.Symbol{Code: "GOV", Precision: 2})
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = f.led.IsRegistered(tx, asset.Symbol{Code: "GOV", Precision: 4})
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}
