// Package config loads the node configuration: built-in defaults overlaid by
// a JSON file and an optional override file.
package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/consensus"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/contract"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/oracle"
)

type Config struct {
	Node      NodeConfig      `json:"node"`
	Consensus ConsensusConfig `json:"consensus"`
	Oracle    OracleConfig    `json:"oracle"`
	Storage   StorageConfig   `json:"storage"`
	Peers     []Peer          `json:"peers"`
}

type NodeConfig struct {
	Index      uint16 `json:"index"`
	ListenAddr string `json:"listen_addr"`
	DataDir    string `json:"data_dir"`
	LogLevel   string `json:"log_level"`
	LogFormat  string `json:"log_format"`
}

type ConsensusConfig struct {
	// Validators is the number of local validators when no peers are set.
	Validators     int     `json:"validators"`
	QuorumFraction float64 `json:"quorum_fraction"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	Policy         string  `json:"policy"`
	Judge          bool    `json:"judge"`
}

type OracleConfig struct {
	BaseURL         string  `json:"base_url"`
	Model           string  `json:"model"`
	APIKey          string  `json:"api_key"`
	TimeoutSeconds  int     `json:"timeout_seconds"`
	MaxFailures     int     `json:"max_failures"`
	CooldownSeconds int     `json:"cooldown_seconds"`
	Temperature     float32 `json:"temperature"`
}

type StorageConfig struct {
	Backend     string `json:"backend"`
	Path        string `json:"path"`
	PostgresDSN string `json:"postgres_dsn"`
}

// Peer is a remote validator reachable over QUIC.
type Peer struct {
	Index            uint16 `json:"index"`
	Address          string `json:"address"`
	Ed25519PublicKey string `json:"ed25519_public_key"`
}

const (
	BackendPebble   = "pebble"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

var ErrInvalidConfig = errors.New("invalid config")

func Default() Config {
	return Config{
		Node: NodeConfig{
			ListenAddr: "127.0.0.1:40000",
			DataDir:    "data",
			LogLevel:   "info",
			LogFormat:  "console",
		},
		Consensus: ConsensusConfig{
			Validators:     5,
			QuorumFraction: consensus.DefaultQuorum,
			TimeoutSeconds: 60,
			Policy:         contract.Lenient.String(),
		},
		Oracle: OracleConfig{
			BaseURL:         "http://localhost:1234/v1",
			TimeoutSeconds:  60,
			MaxFailures:     3,
			CooldownSeconds: 30,
		},
		Storage: StorageConfig{
			Backend: BackendPebble,
		},
	}
}

// Load starts from Default and merges path then overridePath on top. Either
// may be empty; a non-empty path must exist. It returns the files applied.
func Load(path, overridePath string) (Config, []string, error) {
	var paths []string

	base, err := json.Marshal(Default())
	if err != nil {
		return Config{}, paths, fmt.Errorf("marshal defaults: %w", err)
	}
	merged := map[string]any{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return Config{}, paths, fmt.Errorf("unmarshal defaults: %w", err)
	}

	for _, p := range []string{path, overridePath} {
		if p == "" {
			continue
		}
		if err := mergeFile(merged, p); err != nil {
			return Config{}, paths, err
		}
		paths = append(paths, p)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return Config{}, paths, fmt.Errorf("marshal merged config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, paths, fmt.Errorf("unmarshal merged config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, paths, err
	}
	return cfg, paths, nil
}

func mergeFile(dst map[string]any, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config file not found: %s", path)
	}
	if info.IsDir() {
		return fmt.Errorf("config path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %s: %w", path, err)
	}
	var src map[string]any
	if err := json.Unmarshal(data, &src); err != nil {
		return fmt.Errorf("parse config: %s: %w", path, err)
	}
	deepMerge(dst, src)
	return nil
}

func deepMerge(dst, src map[string]any) {
	for key, value := range src {
		srcMap, ok := value.(map[string]any)
		if !ok {
			dst[key] = value
			continue
		}
		if existing, ok := dst[key]; ok {
			if existingMap, ok := existing.(map[string]any); ok {
				deepMerge(existingMap, srcMap)
				continue
			}
		}
		newMap := map[string]any{}
		deepMerge(newMap, srcMap)
		dst[key] = newMap
	}
}

func Save(path string, cfg Config) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects settings the node cannot run with.
func (c Config) Validate() error {
	if c.Consensus.QuorumFraction <= 0 || c.Consensus.QuorumFraction >= 1 {
		return fmt.Errorf("%w: consensus.quorum_fraction %v not in (0, 1)", ErrInvalidConfig, c.Consensus.QuorumFraction)
	}
	if c.Consensus.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: consensus.timeout_seconds must be positive", ErrInvalidConfig)
	}
	if len(c.Peers) == 0 && c.Consensus.Validators <= 0 {
		return fmt.Errorf("%w: consensus.validators must be positive", ErrInvalidConfig)
	}
	if _, err := contract.ParsePolicy(c.Consensus.Policy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch c.Storage.Backend {
	case BackendPebble, BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: storage.postgres_dsn is required for the postgres backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage.backend %q", ErrInvalidConfig, c.Storage.Backend)
	}

	seen := map[uint16]bool{c.Node.Index: true}
	for _, p := range c.Peers {
		if seen[p.Index] {
			return fmt.Errorf("%w: duplicate validator index %d", ErrInvalidConfig, p.Index)
		}
		seen[p.Index] = true
		if p.Address == "" {
			return fmt.Errorf("%w: peer %d has no address", ErrInvalidConfig, p.Index)
		}
		if _, err := p.PublicKey(); err != nil {
			return fmt.Errorf("%w: peer %d: %w", ErrInvalidConfig, p.Index, err)
		}
	}
	return nil
}

// PublicKey decodes the peer's hex encoded ed25519 key.
func (p Peer) PublicKey() (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(p.Ed25519PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode ed25519 public key: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	return ed25519.PublicKey(b), nil
}

// StorePath is where the pebble backend keeps its files.
func (c Config) StorePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.Node.DataDir, "cases")
}

// KeyPath is where the node's ed25519 identity is kept.
func (c Config) KeyPath() string {
	return filepath.Join(c.Node.DataDir, "node.key")
}

func (c Config) Policy() contract.Policy {
	p, _ := contract.ParsePolicy(c.Consensus.Policy)
	return p
}

func (c Config) EngineConfig() consensus.Config {
	return consensus.Config{
		Quorum:  c.Consensus.QuorumFraction,
		Timeout: time.Duration(c.Consensus.TimeoutSeconds) * time.Second,
	}
}

func (c Config) ChatConfig() oracle.ChatConfig {
	return oracle.ChatConfig{
		BaseURL:     c.Oracle.BaseURL,
		Model:       c.Oracle.Model,
		APIKey:      c.Oracle.APIKey,
		Temperature: c.Oracle.Temperature,
		Timeout:     time.Duration(c.Oracle.TimeoutSeconds) * time.Second,
		MaxFailures: c.Oracle.MaxFailures,
		Cooldown:    time.Duration(c.Oracle.CooldownSeconds) * time.Second,
	}
}
