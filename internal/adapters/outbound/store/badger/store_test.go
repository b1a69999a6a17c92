package badger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/adapters/outbound/store/badger"
	"github.com/tollgate/tollgate/internal/adapters/outbound/store/storetest"
	"github.com/tollgate/tollgate/internal/domain"
)

func TestStore_InMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.Store {
		s, err := badger.Open(badger.Config{InMemory: true})
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := badger.Open(badger.Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, s.CreateComponent(ctx, domain.Component{ID: "libfoo", Upstream: "https://github.com/acme/libfoo", Version: "v1.0.0"}))
	require.NoError(t, s.Close())

	s, err = badger.Open(badger.Config{Path: dir})
	require.NoError(t, err)
	defer s.Close()

	c, err := s.GetComponent(ctx, "libfoo")
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0", c.Version)
	assert.NoError(t, s.CollectGarbage())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := badger.Open(badger.Config{})
	assert.Error(t, err)
}
