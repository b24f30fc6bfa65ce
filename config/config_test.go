package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadWithEnv("", env(nil))
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.MinHash.NumPerm)
	assert.Equal(t, 0.7, cfg.MinHash.Threshold)
	assert.EqualValues(t, 1, cfg.MinHash.Seed)
	assert.Equal(t, "lsh", cfg.MinHash.Index)
	assert.Equal(t, "database/minhash.db", cfg.Store.DBFile)
	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, ":8123", cfg.Server.Addr())
	assert.Equal(t, 60*time.Second, cfg.Proof.FetchTimeout)
	assert.Equal(t, "sqlite", cfg.Proof.Backend)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
minhash:
  num_perm: 256
  lsh_threshold: 0.5
  index: brute
proof:
  backend: badger
  badger_dir: /tmp/proofs
  fetch_timeout: 5s
server:
  host: 127.0.0.1
  port: 9000
  cors_origins:
    - http://localhost:3000
log:
  level: debug
  format: text
`), 0o644))

	cfg, err := LoadWithEnv(path, env(map[string]string{
		"MINHASH_LSH_THRESHOLD": "0.8",
		"API_KEY":               "secret",
		"LOG_LEVEL":             "WARN",
		"CORS_ORIGINS":          "http://localhost:5173, http://127.0.0.1:5173",
	}))
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.MinHash.NumPerm)
	assert.Equal(t, 0.8, cfg.MinHash.Threshold)
	assert.Equal(t, "brute", cfg.MinHash.Index)
	assert.Equal(t, "badger", cfg.Proof.Backend)
	assert.Equal(t, 5*time.Second, cfg.Proof.FetchTimeout)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "secret", cfg.Server.APIKey)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		description string
		vars        map[string]string
		yaml        string
	}{
		{description: "threshold out of range", vars: map[string]string{"MINHASH_LSH_THRESHOLD": "1.5"}},
		{description: "unparseable num_perm", vars: map[string]string{"MINHASH_NUM_PERM": "many"}},
		{description: "num_perm too small", vars: map[string]string{"MINHASH_NUM_PERM": "1"}},
		{description: "unknown index", vars: map[string]string{"MINHASH_INDEX": "tree"}},
		{description: "badger without dir", vars: map[string]string{"PROOF_BACKEND": "badger"}},
		{description: "anonymize without key", yaml: "proof:\n  anonymize_addresses: true\n"},
		{description: "bands without rows", yaml: "minhash:\n  bands: 4\n"},
		{description: "bands*rows too large", yaml: "minhash:\n  bands: 20\n  rows: 10\n"},
		{description: "cors origin without scheme", vars: map[string]string{"CORS_ORIGINS": "localhost"}},
		{description: "bad yaml", yaml: "minhash: [\n"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			path := ""
			if testCase.yaml != "" {
				path = filepath.Join(t.TempDir(), "config.yaml")
				require.NoError(t, os.WriteFile(path, []byte(testCase.yaml), 0o644))
			}
			_, err := LoadWithEnv(path, env(testCase.vars))
			assert.Error(t, err)
		})
	}

	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("MINHASH_TEST_DOTENV=from-file\n"), 0o644))
	t.Setenv("MINHASH_TEST_DOTENV", "")
	os.Unsetenv("MINHASH_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "absent.env")))
	assert.Equal(t, "from-file", os.Getenv("MINHASH_TEST_DOTENV"))
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	lc := LogConfig{Level: "warn", Format: "json"}
	logger := lc.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
