package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"scrimbet/config"
	"scrimbet/models"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.NewTestConfig()
	cfg.DataFile = filepath.Join(t.TempDir(), "accounts.json")
	cfg.RandomSeed = 7
	return cfg
}

func TestConfigureLogging(t *testing.T) {
	t.Cleanup(func() {
		log.SetLevel(log.InfoLevel)
		log.SetFormatter(&log.TextFormatter{})
	})

	cfg := config.NewTestConfig()
	cfg.Environment = "production"
	cfg.LogLevel = "warn"
	configureLogging(cfg)

	assert.Equal(t, log.WarnLevel, log.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)
}

func TestBuild_FileStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	app, err := Build(ctx, cfg)
	require.NoError(t, err)
	app.Start()

	result, err := app.Economy.ClaimAttendance(ctx, 42, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, cfg.AttendanceReward, result.NewBalance)

	_, err = app.Wagers.Start(ctx, 42, models.GameTypeRPS, cfg.MinBet)
	require.NoError(t, err)
	assert.Equal(t, cfg.AttendanceReward-cfg.MinBet, app.Ledger.GetBalance(ctx, 42))

	// shutdown refunds the open session before the final flush
	app.Shutdown(ctx)

	restarted, err := Build(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { restarted.Shutdown(context.Background()) })

	assert.Equal(t, cfg.AttendanceReward, restarted.Ledger.GetBalance(ctx, 42))
	wallet := restarted.Stats.GetWallet(ctx, 42)
	require.NotNil(t, wallet.LastAttendanceDate)
	assert.Equal(t, "2025-03-01", *wallet.LastAttendanceDate)
}

func TestBuild_InvalidGameConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.MinesPool = "not-a-number"

	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}

func TestApp_ActorResolvesAdmins(t *testing.T) {
	ctx := context.Background()
	app, err := Build(ctx, testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { app.Shutdown(context.Background()) })

	assert.True(t, app.Actor(999999).Admin)
	assert.False(t, app.Actor(42).Admin)

	snap, err := app.Matches.Create(ctx, 42, 0)
	require.NoError(t, err)

	_, err = app.Matches.Cancel(ctx, snap.ID, app.Actor(43))
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	snap, err = app.Matches.Cancel(ctx, snap.ID, app.Actor(999999))
	require.NoError(t, err)
	assert.Equal(t, models.MatchStateCancelled, snap.State)
}
