// Package config loads the YAML configuration that wires together a
// running xapiand-core node: its discovery group, raft region and
// peers, remote-protocol listener, database pool limits, and WAL
// durability knobs. It follows the nested-struct-plus-yaml-tags shape
// internal/cli.Config used in the teacher, extended with the sections
// this domain's components need.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete node configuration.
type Config struct {
	Node struct {
		Name       string `yaml:"name"`
		Host       string `yaml:"host"`
		HTTPPort   uint16 `yaml:"http_port"`
		BinaryPort uint16 `yaml:"binary_port"`
		Region     int32  `yaml:"region"`
		// NameFixed pins Name: on a Sneer name conflict (§4.3) the node
		// shuts down instead of renaming itself and retrying.
		NameFixed bool `yaml:"name_fixed"`
	} `yaml:"node"`

	Discovery struct {
		ClusterName   string `yaml:"cluster_name"`
		MulticastAddr string `yaml:"multicast_addr"` // e.g. "239.0.0.1:8890"
		Interface     string `yaml:"interface"`       // empty uses the default interface
	} `yaml:"discovery"`

	Raft struct {
		BindAddr string   `yaml:"bind_addr"`
		Peers    []string `yaml:"peers"` // host:port entries for this node's region
	} `yaml:"raft"`

	Remote struct {
		BindAddr     string        `yaml:"bind_addr"`
		IdleTimeout  time.Duration `yaml:"idle_timeout"`
		CheckoutWait time.Duration `yaml:"checkout_wait"`
	} `yaml:"remote"`

	DBPool struct {
		PerHashLimit    int           `yaml:"per_hash_limit"`
		CheckoutTimeout time.Duration `yaml:"checkout_timeout"`
	} `yaml:"dbpool"`

	WAL struct {
		Dir                   string `yaml:"dir"`
		GroupCommitWindowMs   int    `yaml:"group_commit_window_ms"`
		GroupCommitMaxBatch   int    `yaml:"group_commit_max_batch"`
	} `yaml:"wal"`

	Resolver struct {
		CacheSize int `yaml:"cache_size"`
	} `yaml:"resolver"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

// Default returns the configuration applied when a field is left at its
// YAML zero value, mirroring the teacher's practice of defaulting in the
// CLI's run command rather than failing on an incomplete file.
func Default() *Config {
	var c Config
	c.Node.Host = "127.0.0.1"
	c.Node.HTTPPort = 8880
	c.Node.BinaryPort = 8890
	c.Discovery.ClusterName = "xapiand"
	c.Discovery.MulticastAddr = "239.0.0.1:8890"
	c.Remote.BindAddr = ":8890"
	c.Raft.BindAddr = ":8891"
	c.Remote.IdleTimeout = 30 * time.Second
	c.Remote.CheckoutWait = 3 * time.Second
	c.DBPool.PerHashLimit = 16
	c.DBPool.CheckoutTimeout = 3 * time.Second
	c.WAL.Dir = "./data/wal"
	c.WAL.GroupCommitWindowMs = 10
	c.WAL.GroupCommitMaxBatch = 64
	c.Resolver.CacheSize = 1024
	c.Metrics.Enabled = true
	c.Metrics.Port = 9090
	return &c
}

// Load reads and parses the YAML config file at path, filling any unset
// field with Default's value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
