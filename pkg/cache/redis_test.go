package cache

import (
	"strconv"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fasch-registrar-api/pkg/config"
)

func TestNewRedisDisabled(t *testing.T) {
	client, err := NewRedis(config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRedisConnects(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	port, err := strconv.Atoi(server.Port())
	require.NoError(t, err)

	client, err := NewRedis(config.RedisConfig{Enabled: true, Host: server.Host(), Port: port})
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()
}

func TestKey(t *testing.T) {
	assert.Equal(t, "registrar:stats:course:42", Key("stats", "course", "42"))
}
