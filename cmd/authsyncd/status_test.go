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

	"github.com/authsync/authsync/internal/observability"
)

func TestStatusCommand_AgainstRunningDaemon(t *testing.T) {
	ready := false
	server := observability.NewServer("127.0.0.1:0", func() bool { return ready })
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})

	configFile = ""

	t.Run("running but not ready", func(t *testing.T) {
		cmd := NewRootCmd()
		buf := new(bytes.Buffer)
		cmd.SetOut(buf)
		cmd.SetErr(new(bytes.Buffer))
		cmd.SetArgs([]string{"status", "--metrics-addr", server.Addr()})

		require.NoError(t, cmd.Execute())
		assert.Contains(t, buf.String(), "running")
		assert.Contains(t, buf.String(), "not ready")
	})

	t.Run("ready", func(t *testing.T) {
		ready = true

		cmd := NewRootCmd()
		buf := new(bytes.Buffer)
		cmd.SetOut(buf)
		cmd.SetErr(new(bytes.Buffer))
		cmd.SetArgs([]string{"status", "--metrics-addr", server.Addr()})

		require.NoError(t, cmd.Execute())
		assert.Contains(t, buf.String(), "readiness: ready")
	})
}
