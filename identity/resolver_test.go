package identity

import (
	"strings"
	"testing"

	"github.com/kasuganosora/socialgraph/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Forms(t *testing.T) {
	r := NewResolver("local.example")

	cases := map[string]ID{
		"alice":                  "alice@local.example",
		"  Alice ":               "alice@local.example",
		"bob@remote.example":     "bob@remote.example",
		"BOB@Remote.Example":     "bob@remote.example",
		"@carol:remote.example":  "carol@remote.example",
		"dave@host.example:8448": "dave@host.example:8448",
		"e.v-e_1/x+y=z":          "e.v-e_1/x+y=z@local.example",
	}
	for in, want := range cases {
		got, err := r.Resolve(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestResolve_Rejects(t *testing.T) {
	r := NewResolver("local.example")
	for _, in := range []string{
		"",
		"   ",
		"@alice",
		"@:remote.example",
		"al ice",
		"alice@",
		"alice@bad_host",
		"alice@-bad.example",
		"alice@host..example",
		"alice@host.example:",
		"alice@host.example:99999a",
		"alice@host.example:123456",
		"al!ce",
		strings.Repeat("a", 250) + "@remote.example",
	} {
		_, err := r.Resolve(in)
		assert.ErrorIs(t, err, errs.ErrInvalidIdentifier, "%q", in)
	}
}

func TestIsLocal(t *testing.T) {
	r := NewResolver("Local.Example")
	local, err := r.Resolve("alice")
	require.NoError(t, err)
	remote, err := r.Resolve("bob@remote.example")
	require.NoError(t, err)

	assert.True(t, r.IsLocal(local))
	assert.False(t, r.IsLocal(remote))
	assert.Equal(t, "bob", remote.Name())
	assert.Equal(t, "remote.example", remote.Domain())
}
