package state

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

type NeighbourCfg struct {
	Addr Addr `yaml:"addr"`
	Cost Cost `yaml:"cost"`
}

// LocalCfg represents the configuration of this host
type LocalCfg struct {
	Port       uint16         `yaml:"port"`                  // UDP port to listen on
	Interval   float64        `yaml:"interval"`              // route update interval, in seconds
	Neighbours []NeighbourCfg `yaml:"neighbours"`            // directly connected hosts and their link costs
	Host       string         `yaml:"host,omitempty"`        // address to bind and advertise, defaults to the address of the hostname
	LogPath    string         `yaml:"log_path,omitempty"`    // if not empty, logs are also written to this file
	RecvDir    string         `yaml:"recv_dir,omitempty"`    // directory received files are written to
	CtlSocket  string         `yaml:"ctl_socket,omitempty"`  // if not empty, commands are also accepted on this unix socket
	PendingTTL float64        `yaml:"pending_ttl,omitempty"` // seconds an incomplete incoming file is kept without progress
}

func (c *LocalCfg) UpdateInterval() time.Duration {
	return time.Duration(c.Interval * float64(time.Second))
}

// PendingExpiry is how long a stalled incoming transfer is retained.
func (c *LocalCfg) PendingExpiry() time.Duration {
	if c.PendingTTL > 0 {
		return time.Duration(c.PendingTTL * float64(time.Second))
	}
	return max(time.Duration(PendingTTLFactor)*c.UpdateInterval(), MinPendingTTL)
}

// ReadConfig reads a host configuration. Files ending in .yaml or .yml are
// parsed as YAML, anything else as the line based format:
//
//	<listenPort> <updateIntervalSeconds>
//	<neighbourAddr> <directCost>
//	...
func ReadConfig(path string) (*LocalCfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	var cfg *LocalCfg
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg = &LocalCfg{}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, &ConfigError{Path: path, Err: err}
		}
	default:
		cfg, err = ParseConfig(bytes.NewReader(file), path)
		if err != nil {
			return nil, err
		}
	}
	if err := ConfigValidator(cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

// ParseConfig parses the line based configuration format.
func ParseConfig(r io.Reader, path string) (*LocalCfg, error) {
	cfg := &LocalCfg{}
	sc := bufio.NewScanner(r)
	lineNo := 0
	header := false
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, &ConfigError{Path: path, Line: lineNo, Err: fmt.Errorf("expected 2 fields, got %d", len(fields))}
		}
		if !header {
			port, err := strconv.ParseUint(fields[0], 10, 16)
			if err != nil {
				return nil, &ConfigError{Path: path, Line: lineNo, Err: fmt.Errorf("invalid port %q", fields[0])}
			}
			interval, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, &ConfigError{Path: path, Line: lineNo, Err: fmt.Errorf("invalid update interval %q", fields[1])}
			}
			cfg.Port = uint16(port)
			cfg.Interval = interval
			header = true
			continue
		}
		addr, err := ParseAddr(fields[0])
		if err != nil {
			return nil, &ConfigError{Path: path, Line: lineNo, Err: err}
		}
		cost, err := ParseCost(fields[1])
		if err != nil {
			return nil, &ConfigError{Path: path, Line: lineNo, Err: err}
		}
		cfg.Neighbours = append(cfg.Neighbours, NeighbourCfg{Addr: addr, Cost: cost})
	}
	if err := sc.Err(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if !header {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("missing <port> <interval> header")}
	}
	return cfg, nil
}

// MarshalConfig renders cfg in its normalized YAML form.
func MarshalConfig(cfg *LocalCfg) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func validInterval(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}
