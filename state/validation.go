package state

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
)

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func AddrValidator(s string) error {
	_, err := ParseAddr(s)
	return err
}

func ConfigValidator(cfg *LocalCfg) error {
	if cfg.Port == 0 {
		return fmt.Errorf("port must be set")
	}
	if !validInterval(cfg.Interval) {
		return fmt.Errorf("update interval must be a positive number of seconds, got %v", cfg.Interval)
	}
	if cfg.PendingTTL < 0 {
		return fmt.Errorf("pending_ttl must not be negative")
	}
	seen := make([]Addr, 0, len(cfg.Neighbours))
	for _, n := range cfg.Neighbours {
		if err := AddrValidator(string(n.Addr)); err != nil {
			return err
		}
		if slices.Contains(seen, n.Addr) {
			return fmt.Errorf("duplicate neighbour %s", n.Addr)
		}
		if n.Cost < 0 {
			return fmt.Errorf("neighbour %s has negative cost %s", n.Addr, n.Cost)
		}
		seen = append(seen, n.Addr)
	}
	if cfg.LogPath != "" {
		if err := PathValidator(cfg.LogPath); err != nil {
			return fmt.Errorf("log_path: %w", err)
		}
	}
	if cfg.CtlSocket != "" {
		if err := PathValidator(cfg.CtlSocket); err != nil {
			return fmt.Errorf("ctl_socket: %w", err)
		}
	}
	return nil
}
