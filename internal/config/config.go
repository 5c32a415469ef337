// Package config holds process configuration, loaded from yaml.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

type Config struct {
	Logger       LoggerConfig       `yaml:"logger"`
	Server       ServerConfig       `yaml:"http-server"`
	Backlog      BacklogConfig      `yaml:"backlog"`
	Coordination CoordinationConfig `yaml:"coordination"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// BacklogConfig selects the backing log: "http" talks to an external
// commit/query API, "file" appends to a local log under Dir.
type BacklogConfig struct {
	Mode      string `yaml:"mode"`
	CommitURL string `yaml:"commit_url"`
	QueryURL  string `yaml:"query_url"`
	Dir       string `yaml:"dir"`
}

// CoordinationConfig enables the zookeeper-backed counter lock when the
// server list is non-empty. A single replica runs fine without it.
type CoordinationConfig struct {
	ZKServers []string `yaml:"zk_servers"`
	RootPath  string   `yaml:"root_path"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "INFO",
			JSON:  false,
		},
		Server: ServerConfig{
			Port: 10010,
		},
		Backlog: BacklogConfig{
			Mode: "file",
			Dir:  "./data",
		},
		Coordination: CoordinationConfig{
			RootPath: "/rescanvas",
		},
	}
}

// Load reads yaml from path over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
