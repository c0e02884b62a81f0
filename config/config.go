// This file is part of kvoverlay, an unstructured peer-to-peer
// key/value lookup overlay written in Go.
//
// kvoverlay is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// kvoverlay is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later

// Package config loads node configuration from a YAML file overlaid with
// KVOVERLAY_-prefixed environment variables, on top of built-in defaults,
// using koanf/v2.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds everything a node needs to start.
type Config struct {
	Node    NodeConfig    `koanf:"node"`
	Control ControlConfig `koanf:"control"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
}

// NodeConfig describes this node's identity and initial state.
type NodeConfig struct {
	// ListenAddr is this node's own "host:port" overlay address.
	ListenAddr string `koanf:"listen_addr"`
	// NeighborsFile lists "host:port" peers to greet at startup, one per
	// line (§6 of the design: a node ships with a starting neighbor set).
	NeighborsFile string `koanf:"neighbors_file"`
	// StoreFile lists "KEY VALUE" pairs this node serves locally.
	StoreFile string `koanf:"store_file"`
	// DefaultTTL seeds every locally-initiated search; changeable at
	// runtime via the operator TTL command.
	DefaultTTL int `koanf:"default_ttl"`
}

// ControlConfig configures the HTTP/JSON-RPC control surface.
type ControlConfig struct {
	// Addr is the control API's HTTP listen address (e.g., ":8080").
	Addr string `koanf:"addr"`
}

// MetricsConfig configures the Prometheus metrics endpoint. Metrics are
// served on the control API's own listener (SPEC_FULL.md's "GET /metrics"
// control-plane route), so there is no separate metrics listen address;
// Path lets an operator move the route if /metrics collides with
// something else on the control mux.
type MetricsConfig struct {
	Path string `koanf:"path"`
}

// LogConfig controls gospel's leveled logger.
type LogConfig struct {
	// Level is one of "error", "warn", "info", "debug".
	Level string `koanf:"level"`
}

// envPrefix is the environment variable prefix recognized by Load.
// Variables are named KVOVERLAY_<SECTION>_<KEY>, e.g.
// KVOVERLAY_NODE_LISTEN_ADDR.
const envPrefix = "KVOVERLAY_"

// DefaultConfig returns a Config populated with conservative defaults.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ListenAddr:    "127.0.0.1:9000",
			NeighborsFile: "",
			StoreFile:     "",
			DefaultTTL:    7,
		},
		Control: ControlConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the YAML file at path (if path is
// non-empty), overlays KVOVERLAY_ environment variables, and merges on top
// of DefaultConfig(). An empty path is not an error: defaults plus
// environment overrides are enough to start a node for local
// experimentation. A non-empty path that cannot be read or parsed is an
// error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// envKeyMapper transforms KVOVERLAY_NODE_LISTEN_ADDR -> node.listen_addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

func loadDefaults(k *koanf.Koanf, d *Config) error {
	defaultMap := map[string]any{
		"node.listen_addr":    d.Node.ListenAddr,
		"node.neighbors_file": d.Node.NeighborsFile,
		"node.store_file":     d.Node.StoreFile,
		"node.default_ttl":    d.Node.DefaultTTL,
		"control.addr":        d.Control.Addr,
		"metrics.path":        d.Metrics.Path,
		"log.level":           d.Log.Level,
	}
	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}
	return nil
}

// Validation errors.
var (
	ErrEmptyListenAddr = errors.New("node.listen_addr must not be empty")
	ErrInvalidTTL      = errors.New("node.default_ttl must be > 0")
)

// Validate checks cfg for the bare minimum a node needs to start.
func Validate(cfg *Config) error {
	if cfg.Node.ListenAddr == "" {
		return ErrEmptyListenAddr
	}
	if cfg.Node.DefaultTTL <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
