package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPings(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")
}

func TestNewRequiresPassword(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("rahasia")
	_, err := New(context.Background(), Options{Addr: mr.Addr()})
	require.Error(t, err)

	client, err := New(context.Background(), Options{Addr: mr.Addr(), Password: "rahasia"})
	require.NoError(t, err)
	_ = client.Close()
}

func TestAsynqOpts(t *testing.T) {
	opts := Options{Addr: "redis:6379", Password: "p", DB: 2}.AsynqOpts()
	require.Equal(t, "redis:6379", opts.Addr)
	require.Equal(t, "p", opts.Password)
	require.Equal(t, 2, opts.DB)
}
