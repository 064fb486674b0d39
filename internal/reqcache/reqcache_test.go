package reqcache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemember_ComputesOnce(t *testing.T) {
	rc := New()
	calls := 0
	compute := func() ([]string, error) {
		calls++
		return []string{"Lead"}, nil
	}

	v, err := Remember(rc, "rules:u1", compute)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lead"}, v)

	v, err = Remember(rc, "rules:u1", compute)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lead"}, v)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rc.Len())
}

func TestRemember_ErrorNotCached(t *testing.T) {
	rc := New()
	_, err := Remember(rc, "k", func() (int, error) { return 0, errors.New("boom") })
	require.Error(t, err)
	assert.Equal(t, 0, rc.Len())
}

func TestRemember_NilCache(t *testing.T) {
	var rc *Cache
	calls := 0
	for i := 0; i < 2; i++ {
		_, err := Remember(rc, "k", func() (int, error) { calls++; return 1, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
}

func TestRemember_TypeMismatch(t *testing.T) {
	rc := New()
	rc.Set("k", "string")
	_, err := Remember(rc, "k", func() (int, error) { return 1, nil })
	assert.Error(t, err)
}

func TestCachesAreIsolated(t *testing.T) {
	a, b := New(), New()
	a.Set("k", 1)
	_, ok := b.Get("k")
	assert.False(t, ok)
}
