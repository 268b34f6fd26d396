package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := Connect("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, c.Ping(context.Background()))
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect("http://nope")
	assert.Error(t, err)
}

func TestConnectFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect("redis://" + addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}
