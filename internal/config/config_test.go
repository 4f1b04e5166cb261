package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := Default()

	assert.Equal(t, ":8080", c.ListenAddress)
	assert.Equal(t, StoreMemory, c.Store.Backend)
	assert.Equal(t, 3, c.Negotiation.MaxRounds)
	assert.Equal(t, 6*time.Hour, c.Negotiation.ExpiryWindow)
	assert.Equal(t, 600.0, c.Negotiation.FairLow)
	assert.Equal(t, 800.0, c.Negotiation.FairHigh)
	assert.Equal(t, 0.40, c.Payment.AdvanceFraction)
	assert.Equal(t, 0.20, c.Payment.DepositFraction)
	assert.Equal(t, uint16(5432), c.Database.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGRIHUB_STORE_BACKEND", "postgres")
	t.Setenv("AGRIHUB_DATABASE_HOST", "db.internal")
	t.Setenv("AGRIHUB_NEGOTIATION_MAX_ROUNDS", "5")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, c.Store.Backend)
	assert.Equal(t, "db.internal", c.Database.Host)
	assert.Equal(t, 5, c.Negotiation.MaxRounds)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agrihub.yaml")
	body := "payment:\n  advancefraction: 0.5\nnegotiation:\n  expirywindow: 2h\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, c.Payment.AdvanceFraction)
	assert.Equal(t, 2*time.Hour, c.Negotiation.ExpiryWindow)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Setenv("AGRIHUB_STORE_BACKEND", "etcd")
	_, err := Load("")
	assert.Error(t, err)
}
