package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape for simptcpd's YAML config file, named
// with the -config flag; fields the file leaves out keep the values from
// defaultFileConfig.
type fileConfig struct {
	ListenUDPAddr string        `yaml:"listen_udp_addr"`
	SimPort       uint16        `yaml:"sim_port"`
	Backlog       int           `yaml:"backlog"`
	InitialRTT    time.Duration `yaml:"initial_rtt"`
	MaxRetransmit int           `yaml:"max_retransmit"`
	LogLevel      string        `yaml:"log_level"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		ListenUDPAddr: "127.0.0.1:9100",
		SimPort:       15000,
		Backlog:       8,
		InitialRTT:    300 * time.Millisecond,
		MaxRetransmit: 5,
		LogLevel:      "info",
	}
}

func loadFileConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
