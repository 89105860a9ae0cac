package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/jobrunner/geefetch/internal/config"
)

// applyStatusAddr enables the status server on host:port.
func applyStatusAddr(cfg *config.StatusConfig, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid --status-addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid --status-addr port %q", portStr)
	}

	cfg.Enabled = true
	cfg.Host = host
	cfg.Port = port
	return nil
}
