package system

import (
	"os/user"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllUsersSentinel(t *testing.T) {
	u := AllUsers()
	assert.True(t, u.IsAllUsers())
	assert.False(t, u.IsEmpty())
	assert.Equal(t, "*", u.String())

	var empty User
	assert.True(t, empty.IsEmpty())
	assert.False(t, empty.IsAllUsers())
}

func TestOSUserResolver(t *testing.T) {
	current, err := user.Current()
	if err != nil {
		t.Skipf("current user unavailable: %v", err)
	}

	var r OSUserResolver

	t.Run("wildcard", func(t *testing.T) {
		u, err := r.Resolve("*")
		require.NoError(t, err)
		assert.True(t, u.IsAllUsers())
	})

	t.Run("by name", func(t *testing.T) {
		u, err := r.Resolve(current.Username)
		require.NoError(t, err)
		assert.Equal(t, current.Username, u.Username)
		assert.Equal(t, current.Uid, strconv.Itoa(u.UID))
	})

	t.Run("by uid", func(t *testing.T) {
		u, err := r.Resolve(current.Uid)
		require.NoError(t, err)
		assert.Equal(t, current.Username, u.Username)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := r.Resolve("notauser-launcher-test")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := r.Resolve("")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}
