package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/anjiri1684/mentor_payouts/configs"
	"github.com/anjiri1684/mentor_payouts/database"
)

func memoryConfig() config.AppConfig {
	return config.AppConfig{
		StoreDriver:      "memory",
		TransferProvider: "simulated",
		JWTSecret:        "secret",
		AdminEmail:       "admin@example.com",
		AdminPassword:    "password123",
		AdminFullName:    "Payout Admin",
		ReviewThreshold:  decimal.NewFromInt(10000),
		Currency:         "INR",
		TransferTimeout:  time.Second,
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["settle"])
	assert.True(t, names["migrate"])
}

func TestBuildAppWithMemoryStore(t *testing.T) {
	logger, _ := test.NewNullLogger()
	a, err := buildApp(context.Background(), memoryConfig(), logger)
	require.NoError(t, err)
	defer a.Close()

	user, err := a.store.GetUserByEmail(context.Background(), "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Role)

	report, err := a.scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Mentors)
}

func TestBuildAppUsesRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	logger, _ := test.NewNullLogger()
	locker, closeLocker, err := newLocker(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer closeLocker()
	assert.IsType(t, &database.RedisMentorLocker{}, locker)
}

func TestBuildAppRejectsUnknownProviders(t *testing.T) {
	logger, _ := test.NewNullLogger()

	cfg := memoryConfig()
	cfg.TransferProvider = "carrier-pigeon"
	_, err := buildApp(context.Background(), cfg, logger)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.StoreDriver = "sqlite"
	_, err = buildApp(context.Background(), cfg, logger)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.TransferProvider = "stripe"
	_, err = buildApp(context.Background(), cfg, logger)
	assert.Error(t, err)
}
