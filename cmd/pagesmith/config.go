package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pagesmith/pagepipe"
)

// serverConfig is the pagesmith.yaml layout.
type serverConfig struct {
	Addr     string `yaml:"addr"`
	MaxConns int    `yaml:"max_conns"`
	LogLevel string `yaml:"log_level"`

	// AuthUser and AuthPasswordHash (bcrypt) enable Basic Auth on /api.
	AuthUser         string `yaml:"auth_user"`
	AuthPasswordHash string `yaml:"auth_password_hash"`

	// JournalDB is the SQLite operation journal; empty disables it.
	JournalDB        string        `yaml:"journal_db"`
	JournalRetention time.Duration `yaml:"journal_retention"`

	Pipeline pagepipe.Config `yaml:"pipeline"`
}

func (c *serverConfig) defaults() {
	if c.Addr == "" {
		c.Addr = ":8090"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 64
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.JournalRetention <= 0 {
		c.JournalRetention = 30 * 24 * time.Hour
	}
}

// maxBody bounds a whole request: a full merge of maximum-size files plus
// form overhead. p must carry defaults (Pipeline.Config).
func maxBody(p pagepipe.Config) int64 {
	return p.MaxFileSize*int64(p.MaxInputs) + 1<<20
}

func loadServerConfig(path string) (*serverConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &serverConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv lets PAGESMITH_* variables override the file.
func (c *serverConfig) applyEnv() error {
	c.Addr = env("PAGESMITH_ADDR", c.Addr)
	c.LogLevel = env("LOG_LEVEL", c.LogLevel)
	c.AuthUser = env("PAGESMITH_AUTH_USER", c.AuthUser)
	c.AuthPasswordHash = env("PAGESMITH_AUTH_HASH", c.AuthPasswordHash)
	c.JournalDB = env("PAGESMITH_JOURNAL_DB", c.JournalDB)
	if v := os.Getenv("PAGESMITH_MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PAGESMITH_MAX_CONNS: %w", err)
		}
		c.MaxConns = n
	}
	if (c.AuthUser == "") != (c.AuthPasswordHash == "") {
		return fmt.Errorf("auth_user and auth_password_hash must be set together")
	}
	return nil
}
