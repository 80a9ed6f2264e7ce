package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bank_ledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, string(idgen.StrategySequential), cfg.IDs.Strategy)
	assert.False(t, cfg.Scheduler.Enabled)

	settings, err := cfg.PolicySettings()
	require.NoError(t, err)
	assert.Equal(t, 10, settings.CheckingFreeTransactions)
	assert.True(t, settings.CheckingFeePerExtra.Equal(decimal.RequireFromString("2.50")))
	assert.True(t, settings.SavingsInterestRate.Equal(decimal.RequireFromString("0.02")))
	assert.True(t, settings.SavingsMinimumBalance.Equal(decimal.RequireFromString("100")))
	assert.Equal(t, 5, settings.SavingsWithdrawalLimit)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeFile(t, "ledger.yaml", `
server:
  addr: ":7000"
log:
  level: debug
policy:
  savings:
    withdrawal_limit: 3
scheduler:
  enabled: true
  interval: 1h
`)
	t.Setenv("LEDGER_SERVER_ADDR", ":7001")
	t.Setenv("LEDGER_POLICY_CHECKING_FEE_PER_EXTRA", "3.00")

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, ":7001", cfg.Server.Addr, "env wins over file")
	assert.Equal(t, 3, cfg.Policy.Savings.WithdrawalLimit)
	assert.Equal(t, "3.00", cfg.Policy.Checking.FeePerExtra)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvFile(t *testing.T) {
	envFile := writeFile(t, "test.env", "LEDGER_IDS_STRATEGY=uuid\nLEDGER_STATEMENT_SECRET=s3cret\n")
	t.Cleanup(func() {
		os.Unsetenv("LEDGER_IDS_STRATEGY")
		os.Unsetenv("LEDGER_STATEMENT_SECRET")
	})

	cfg, err := Load("", envFile)
	require.NoError(t, err)

	assert.Equal(t, "uuid", cfg.IDs.Strategy)
	assert.Equal(t, "s3cret", cfg.Statement.Secret)

	gen, err := cfg.IDGenerator()
	require.NoError(t, err)
	assert.IsType(t, &idgen.UUID{}, gen)
}

func TestLoad_MissingFiles(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)

	_, err = Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"bad level":    "log:\n  level: loud\n",
		"bad strategy": "ids:\n  strategy: random\n",
		"bad fee":      "policy:\n  checking:\n    fee_per_extra: two\n",
		"negative cap": "policy:\n  savings:\n    withdrawal_limit: -1\n",
		"no interval":  "scheduler:\n  enabled: true\n  interval: 0s\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "ledger.yaml", content), "")
			assert.Error(t, err)
		})
	}
}
