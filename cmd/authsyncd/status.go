// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/authsync/authsync/internal/config"
)

const statusTimeout = 5 * time.Second

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running authsyncd daemon",
		Long:  `Query the daemon's liveness and readiness probes over its metrics address.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runStatus(cmd, cfg)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runStatus(cmd *cobra.Command, cfg *config.Config) error {
	if cfg.MetricsAddr == "" {
		return fmt.Errorf("metrics-addr is required to query daemon status")
	}

	client := &http.Client{Timeout: statusTimeout}

	alive, detail := probe(client, cfg.MetricsAddr, "/healthz/liveness")
	if !alive {
		cmd.Printf("daemon:    not running (%s)\n", detail)
		return fmt.Errorf("daemon is not reachable at %s", cfg.MetricsAddr)
	}
	cmd.Println("daemon:    running")

	ready, detail := probe(client, cfg.MetricsAddr, "/healthz/readiness")
	if ready {
		cmd.Println("readiness: ready (auth state resolved)")
	} else {
		cmd.Printf("readiness: not ready (%s)\n", detail)
	}
	return nil
}

// probe issues one GET against a health endpoint and reports whether it
// answered 200 along with a short detail string.
func probe(client *http.Client, addr, path string) (ok bool, detail string) {
	resp, err := client.Get("http://" + addr + path)
	if err != nil {
		return false, err.Error()
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return false, err.Error()
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("%d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return true, strings.TrimSpace(string(body))
}
