package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tipytap/internal/domain"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"APP_PORT", "JWT_TTL", "LEDGER_BACKEND", "CURRENCY", "CURRENCY_SYMBOL", "QR_CODE_PREFIX",
		"MIN_TIP_AMOUNT", "MAX_TIP_AMOUNT", "MIN_WITHDRAWAL", "MAX_WITHDRAWAL", "MAX_DEPOSIT", "SIMULATED_LATENCY",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, DefaultLedger(), cfg.Ledger)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", BackendKV)
	t.Setenv("MIN_TIP_AMOUNT", "5.50")
	t.Setenv("MAX_WITHDRAWAL", "not-a-number")
	t.Setenv("SIMULATED_LATENCY", "150ms")
	t.Setenv("QR_CODE_PREFIX", "GUARD-")

	cfg := LoadConfig()
	assert.Equal(t, BackendKV, cfg.Ledger.Backend)
	assert.Equal(t, domain.Amount(550), cfg.Ledger.MinTip)
	assert.Equal(t, DefaultLedger().MaxWithdrawal, cfg.Ledger.MaxWithdrawal)
	assert.Equal(t, 150*time.Millisecond, cfg.Ledger.SimulatedLatency)
	assert.Equal(t, "GUARD-", cfg.Ledger.QRCodePrefix)
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBUser: "tip", DBPassword: "pw", DBHost: "db", DBPort: "3306", DBName: "tipytap"}
	assert.Equal(t, "tip:pw@tcp(db:3306)/tipytap?parseTime=true", cfg.DSN())
}
