package utils

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_STR", " v ")
	t.Setenv("X_INT", "12")
	t.Setenv("X_BAD_INT", "abc")
	t.Setenv("X_FLOAT", "2.5")
	t.Setenv("X_BOOL", "yes")
	t.Setenv("X_SEC", "3")
	t.Setenv("X_MS", "250")

	assert.Equal(t, "v", EnvString("X_STR", "d"))
	assert.Equal(t, "d", EnvString("X_UNSET_STR", "d"))
	assert.Equal(t, 12, EnvInt("X_INT", 1))
	assert.Equal(t, 1, EnvInt("X_BAD_INT", 1))
	assert.Equal(t, 2.5, EnvFloat("X_FLOAT", 0))
	assert.True(t, EnvBool("X_BOOL", false))
	assert.True(t, EnvBool("X_UNSET_BOOL", true))
	assert.Equal(t, 3*time.Second, EnvSeconds("X_SEC", time.Minute))
	assert.Equal(t, time.Minute, EnvSeconds("X_UNSET_SEC", time.Minute))
	assert.Equal(t, 250*time.Millisecond, EnvMillis("X_MS", time.Second))
}

func TestBuildPostgresDSNFromEnv(t *testing.T) {
	t.Setenv("PG_HOST", "db")
	t.Setenv("PG_PORT", "6543")
	t.Setenv("PG_USER", "forest")
	t.Setenv("PG_PASSWORD", "p@ss")
	t.Setenv("PG_DB", "")
	t.Setenv("PG_SSLMODE", "")
	assert.Equal(t, "postgres://forest:p%40ss@db:6543/forest?sslmode=disable", BuildPostgresDSNFromEnv())
}

func TestEnsureSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	cert, key := filepath.Join(dir, "certs", "server.crt"), filepath.Join(dir, "certs", "server.key")
	require.NoError(t, EnsureSelfSignedCert(cert, key, "forest-api.local"))
	_, err := tls.LoadX509KeyPair(cert, key)
	require.NoError(t, err)

	st, err := os.Stat(cert)
	require.NoError(t, err)
	require.NoError(t, EnsureSelfSignedCert(cert, key, "forest-api.local"))
	st2, err := os.Stat(cert)
	require.NoError(t, err)
	assert.Equal(t, st.ModTime(), st2.ModTime())
}
