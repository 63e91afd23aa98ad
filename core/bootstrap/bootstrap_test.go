package bootstrap

import (
	"errors"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/roombot/core/config"
	coredatabase "github.com/m3rciful/roombot/core/database"
	"github.com/m3rciful/roombot/core/session"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunMemoryBackend(t *testing.T) {
	res, err := Run(Options{Config: &coreconfig.Config{}, LoggerInit: noLogger, MemorySize: 8})
	require.NoError(t, err)
	require.IsType(t, &session.MemoryStore{}, res.Store)
	require.Nil(t, res.DB)
	require.NoError(t, res.Close())
}

func TestRunRejectsUnknownBackend(t *testing.T) {
	_, err := Run(Options{Config: &coreconfig.Config{}, LoggerInit: noLogger, Backend: "etcd"})
	require.Error(t, err)

	_, err = Run(Options{LoggerInit: noLogger})
	require.Error(t, err)
}

func TestRunPropagatesFailures(t *testing.T) {
	boom := errors.New("boom")

	_, err := Run(Options{Config: &coreconfig.Config{}, LoggerInit: func(*coreconfig.Config) error { return boom }})
	require.ErrorIs(t, err, boom)

	_, err = Run(Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		Backend:    BackendPostgres,
		Connect:    func(coredatabase.Config) (*sqlx.DB, error) { return nil, boom },
	})
	require.ErrorIs(t, err, boom)

	_, err = Run(Options{
		Config:       &coreconfig.Config{},
		LoggerInit:   noLogger,
		Backend:      BackendRedis,
		ConnectRedis: func(coredatabase.RedisConfig) (*redis.Client, error) { return nil, boom },
	})
	require.ErrorIs(t, err, boom)
}
