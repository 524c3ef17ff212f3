package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
	"github.com/aegisshield/compliance-tracker/internal/config"
	"github.com/aegisshield/compliance-tracker/internal/portfolio"
	"github.com/aegisshield/compliance-tracker/internal/tracker"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.HTTPPort = 0
	return cfg
}

func TestServerGraphIsValid(t *testing.T) {
	assert.NoError(t, fx.ValidateApp(Server(testConfig(t), zap.NewNop())))
}

func TestUnknownBackendFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "cassandra"

	app := fx.New(Core(cfg, zap.NewNop()), fx.Invoke(func(*tracker.Tracker) {}))
	assert.Error(t, app.Err())
}

func TestServerLifecycle(t *testing.T) {
	var (
		tr  *tracker.Tracker
		svc *portfolio.Service
	)
	app := fxtest.New(t, Server(testConfig(t), zap.NewNop()), fx.Populate(&tr, &svc))
	app.RequireStart()
	defer app.RequireStop()

	ctx := context.Background()
	id, err := tr.Create(ctx, "org-1", "sec-climate-2023", compliance.Date(2023, 12, 31), nil)
	require.NoError(t, err)

	result, err := svc.Analyze(ctx, id)
	require.NoError(t, err)
	assert.Len(t, result.Gaps, 4)
}
