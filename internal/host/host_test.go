package host

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAuth(t *testing.T) {
	c := NewCall("c1", time.Unix(100, 0), "dac", "alice")
	require.NoError(t, c.RequireAuth("alice"))
	assert.True(t, errors.Is(c.RequireAuth("bob"), ErrUnauthorized))
	assert.ErrorIs(t, c.RequireAdmin(), ErrUnauthorized)
	require.NoError(t, c.RequireAny("bob", "alice"))
	assert.Equal(t, "alice", c.Caller())

	admin := NewCall("c2", time.Unix(100, 0), "dac", "dac")
	assert.True(t, admin.IsAdmin())
	assert.False(t, NewCall("c3", time.Now(), "", "x").HasAuth(""))
}

func TestNotifyAndEvents(t *testing.T) {
	c := NewCall("c1", time.Now(), "dac", "alice")
	c.Notify("alice")
	c.Notify("bob")
	c.Notify("alice")
	c.Emit("announcement", 1)
	assert.Equal(t, []string{"alice", "bob"}, c.Notified())
	assert.Len(t, c.Events(), 1)

	c.Reset()
	assert.Empty(t, c.Notified())
	assert.Empty(t, c.Events())
}

func TestDirectories(t *testing.T) {
	a := NewAccounts("alice")
	assert.True(t, a.IsAccount("alice"))
	assert.False(t, a.IsAccount("bob"))
	a.Add("bob")
	assert.True(t, a.IsAccount("bob"))

	var rule NameRule
	assert.True(t, rule.IsAccount("ednadac"))
	assert.True(t, rule.IsAccount("a.b1"))
	assert.False(t, rule.IsAccount("Alice"))
	assert.False(t, rule.IsAccount("toolongname12x"))
	assert.False(t, rule.IsAccount("trailing."))
	assert.False(t, rule.IsAccount("bad6"))
}
