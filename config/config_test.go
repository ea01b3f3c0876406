package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"winerp/codec"
	"winerp/registry"
	"winerp/server"
)

func TestServerDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.Equal(t, "json", cfg.Codec)
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 256, cfg.QueueSize)
	assert.Equal(t, registry.DefaultService, cfg.Service)

	auth, err := cfg.Authenticator()
	require.NoError(t, err)
	assert.IsType(t, server.AllowAll{}, auth)
}

func TestServerFromEnv(t *testing.T) {
	t.Setenv("WINERP_SERVER_ADDR", "0.0.0.0:9000")
	t.Setenv("WINERP_CODEC", "msgpack")
	t.Setenv("WINERP_SERVER_SECRET", "s3cret")
	t.Setenv("WINERP_ETCD_ENDPOINTS", "10.0.0.1:2379,10.0.0.2:2379")
	t.Setenv("WINERP_SERVER_ADVERTISE_ADDR", "10.0.0.5:9000")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"10.0.0.1:2379", "10.0.0.2:2379"}, cfg.EtcdEndpoints)

	opts, err := cfg.ServerOptions(nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, codec.CodecTypeMsgpack, opts.Codec)
	assert.Equal(t, "10.0.0.5:9000", opts.AdvertiseAddr)
	assert.NoError(t, opts.Authenticator.Authenticate("a", "s3cret"))
	assert.Error(t, opts.Authenticator.Authenticate("a", "nope"))
}

func TestServerValidate(t *testing.T) {
	t.Setenv("WINERP_CODEC", "xml")
	t.Setenv("WINERP_SERVER_SECRET", "a")
	t.Setenv("WINERP_SERVER_SECRET_HASH", "b")
	t.Setenv("WINERP_ETCD_ENDPOINTS", "127.0.0.1:2379")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
	assert.Contains(t, err.Error(), "not both")
	assert.Contains(t, err.Error(), "advertise")
}

func TestClientConfig(t *testing.T) {
	cfg, err := LoadClientConfig()
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "name")

	t.Setenv("WINERP_CLIENT_NAME", "worker")
	t.Setenv("WINERP_BALANCER", "weighted_random")
	cfg, err = LoadClientConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)

	opts, err := cfg.ClientOptions(nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultAddr, opts.Addr)
	assert.Equal(t, "weighted_random", opts.Balancer.Name())
}

func TestClientBrokerList(t *testing.T) {
	t.Setenv("WINERP_CLIENT_NAME", "worker")
	t.Setenv("WINERP_BROKERS", "10.0.0.1:13254,10.0.0.2:13254")
	cfg, err := LoadClientConfig()
	require.NoError(t, err)

	reg, closeReg, err := OpenRegistry(cfg.EtcdEndpoints, cfg.Brokers, cfg.Service, zap.NewNop())
	require.NoError(t, err)
	defer closeReg()
	require.NotNil(t, reg)

	opts, err := cfg.ClientOptions(reg, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, opts.Addr)
	assert.Same(t, reg, opts.Registry)
}

func TestOpenRegistryNone(t *testing.T) {
	reg, closeReg, err := OpenRegistry(nil, nil, "winerp", zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, reg)
	assert.NoError(t, closeReg())
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := NewLogger(level)
		require.NoError(t, err, level)
		lvl, err := zapcore.ParseLevel(level)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(lvl))
		assert.False(t, logger.Core().Enabled(lvl-1))
	}
	_, err := NewLogger("loud")
	assert.Error(t, err)
}
