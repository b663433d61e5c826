package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/contract"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLoadDefaults(t *testing.T) {
	cfg, paths, err := Load("", "")
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, contract.Lenient, cfg.Policy())
	assert.Equal(t, 5, cfg.Consensus.Validators)
	assert.Equal(t, filepath.Join("data", "cases"), cfg.StorePath())
}

func TestLoadMergesConfigFiles(t *testing.T) {
	temp := t.TempDir()
	path := filepath.Join(temp, "node.json")
	override := filepath.Join(temp, "override.json")

	writeJSON(t, path, map[string]any{
		"consensus": map[string]any{
			"validators":      7,
			"quorum_fraction": 0.66,
			"policy":          "strict",
		},
		"oracle": map[string]any{
			"model":           "judge-7b",
			"timeout_seconds": 10,
		},
	})
	writeJSON(t, override, map[string]any{
		"consensus": map[string]any{
			"validators": 3,
		},
		"storage": map[string]any{
			"backend": "memory",
		},
	})

	cfg, paths, err := Load(path, override)
	require.NoError(t, err)
	assert.Equal(t, []string{path, override}, paths)

	assert.Equal(t, 3, cfg.Consensus.Validators)
	assert.Equal(t, 0.66, cfg.Consensus.QuorumFraction)
	assert.Equal(t, contract.Strict, cfg.Policy())
	assert.Equal(t, 60, cfg.Consensus.TimeoutSeconds)
	assert.Equal(t, "judge-7b", cfg.Oracle.Model)
	assert.Equal(t, "http://localhost:1234/v1", cfg.Oracle.BaseURL)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)

	chat := cfg.ChatConfig()
	assert.Equal(t, 10*time.Second, chat.Timeout)
	assert.Equal(t, 30*time.Second, chat.Cooldown)
	assert.Equal(t, time.Minute, cfg.EngineConfig().Timeout)
}

func TestLoadErrors(t *testing.T) {
	temp := t.TempDir()

	_, _, err := Load(filepath.Join(temp, "missing.json"), "")
	assert.Error(t, err)

	_, _, err = Load(temp, "")
	assert.Error(t, err)

	bad := filepath.Join(temp, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, _, err = Load(bad, "")
	assert.Error(t, err)

	invalid := filepath.Join(temp, "invalid.json")
	writeJSON(t, invalid, map[string]any{"consensus": map[string]any{"quorum_fraction": 1.5}})
	_, _, err = Load(invalid, "")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	goodPeer := Peer{Index: 1, Address: "127.0.0.1:40001", Ed25519PublicKey: hex.EncodeToString(pub)}

	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "zero quorum", mutate: func(c *Config) { c.Consensus.QuorumFraction = 0 }, wantErr: true},
		{name: "full quorum", mutate: func(c *Config) { c.Consensus.QuorumFraction = 1 }, wantErr: true},
		{name: "no validators", mutate: func(c *Config) { c.Consensus.Validators = 0 }, wantErr: true},
		{name: "no validators but peers", mutate: func(c *Config) {
			c.Consensus.Validators = 0
			c.Peers = []Peer{goodPeer}
		}},
		{name: "zero timeout", mutate: func(c *Config) { c.Consensus.TimeoutSeconds = 0 }, wantErr: true},
		{name: "unknown policy", mutate: func(c *Config) { c.Consensus.Policy = "eventual" }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "sqlite" }, wantErr: true},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Backend = BackendPostgres }, wantErr: true},
		{name: "postgres with dsn", mutate: func(c *Config) {
			c.Storage.Backend = BackendPostgres
			c.Storage.PostgresDSN = "postgres://localhost/disputes"
		}},
		{name: "peer clashes with node index", mutate: func(c *Config) {
			p := goodPeer
			p.Index = 0
			c.Peers = []Peer{p}
		}, wantErr: true},
		{name: "peer with bad key", mutate: func(c *Config) {
			p := goodPeer
			p.Ed25519PublicKey = "abcd"
			c.Peers = []Peer{p}
		}, wantErr: true},
		{name: "peer without address", mutate: func(c *Config) {
			p := goodPeer
			p.Address = ""
			c.Peers = []Peer{p}
		}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "node.json")
	cfg := Default()
	cfg.Node.Index = 2
	cfg.Oracle.Model = "m"
	require.NoError(t, Save(path, cfg))

	loaded, _, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	assert.Error(t, Save("", cfg))
}
