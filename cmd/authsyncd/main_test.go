// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authsync/authsync/internal/config"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	subcommands := []string{"serve", "migrate", "status"}
	for _, sub := range subcommands {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	// Reset global
	configFile = ""

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--config=/etc/authsync.yaml", "--help"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "/etc/authsync.yaml", configFile)
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestRootCommand_NoArgs(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	// Root command with no args should show help (no error)
	require.NoError(t, cmd.Execute())
}

func TestUnknownCommand(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"nonexistent"})

	require.Error(t, cmd.Execute())
}

func TestMigrateCommand_NoDatabaseURL(t *testing.T) {
	configFile = ""

	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"migrate"})

	err := cmd.Execute()
	require.Error(t, err, "expected error when no database-url is configured")
	assert.Contains(t, err.Error(), "database-url")
}

func TestMigrateCommand_InvalidDatabaseURL(t *testing.T) {
	configFile = ""

	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"migrate", "--database-url", "invalid://not-a-real-db"})

	require.Error(t, cmd.Execute())
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	configFile = ""

	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"serve", "--log-format", "xml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_format")
}

func TestStatusCommand_DaemonNotRunning(t *testing.T) {
	configFile = ""

	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	// A closed port: nothing listens on the discard port of localhost.
	cmd.SetArgs([]string{"status", "--metrics-addr", "127.0.0.1:9"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestRunServe_StartsAndShutsDown(t *testing.T) {
	cfg := &config.Config{
		CacheKey:    config.DefaultCacheKey,
		MetricsAddr: "127.0.0.1:0",
		SessionTTL:  time.Hour,
		LogFormat:   "text",
		LogLevel:    "error",
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	cmd := NewServeCmd()
	cmd.SetOut(new(bytes.Buffer))

	done := make(chan error, 1)
	go func() {
		done <- runServeWithDeps(ctx, cfg, cmd, nil)
	}()

	select {
	case err := <-done:
		require.NoError(t, err, "serve should shut down cleanly on context cancel")
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for serve to shut down")
	}
}

func TestRunServe_MetricsDisabled(t *testing.T) {
	cfg := &config.Config{
		CacheKey:   config.DefaultCacheKey,
		SessionTTL: time.Hour,
		LogFormat:  "text",
		LogLevel:   "error",
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	cmd := NewServeCmd()
	cmd.SetOut(new(bytes.Buffer))

	require.NoError(t, runServeWithDeps(ctx, cfg, cmd, nil))
}
