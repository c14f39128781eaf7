package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gravito-framework/quasar-stat/pkg/config"
)

func TestApplyArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		app     int64
		parent  int32
		wantErr bool
	}{
		{"none", nil, 0, 0, false},
		{"application only", []string{"12"}, 12, 0, false},
		{"both", []string{"12", "4711"}, 12, 4711, false},
		{"bad application", []string{"abc"}, 0, 0, true},
		{"bad parent", []string{"1", "99999999999"}, 1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			err := applyArgs(cfg, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.app, cfg.Application)
			require.Equal(t, tt.parent, cfg.ParentPID)
		})
	}
}

func TestApplyFlags(t *testing.T) {
	cmd := newRootCmd(new(int))
	require.NoError(t, cmd.ParseFlags([]string{
		"--polling-interval", "5",
		"--max-cycles", "10",
		"--lock-driver", "none",
		"--storage-path", "/tmp/x.db",
	}))

	cfg := config.DefaultConfig()
	require.NoError(t, applyFlags(cfg, cmd))
	require.Equal(t, 5*time.Second, cfg.PollingInterval)
	require.Equal(t, 10, cfg.MaxCycles)
	require.Equal(t, "none", cfg.Lock.Driver)
	require.Equal(t, "/tmp/x.db", cfg.Storage.Path)
	require.Equal(t, "sqlite", cfg.Storage.Driver, "unset flags keep the loaded value")
}

func TestApplyFlagsValidates(t *testing.T) {
	cmd := newRootCmd(new(int))
	require.NoError(t, cmd.ParseFlags([]string{"--max-cycles", "0"}))

	var cerr *config.ConfigError
	require.ErrorAs(t, applyFlags(config.DefaultConfig(), cmd), &cerr)
	require.Equal(t, "MaxCycles", cerr.Field)
}

func TestExecute(t *testing.T) {
	dir := t.TempDir()
	base := []string{
		"--max-cycles", "2",
		"--lock-dir", dir,
		"--storage-path", filepath.Join(dir, "stat.db"),
	}

	t.Run("completes", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		args := append([]string{"7", strconv.Itoa(os.Getpid())}, base...)
		code := execute(context.Background(), args, &stdout, &stderr)
		require.Equal(t, 0, code, stderr.String())
		require.Contains(t, stdout.String(), "Quasar Stat")
	})

	t.Run("invalid argument", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := execute(context.Background(), []string{"seven"}, &stdout, &stderr)
		require.Equal(t, 1, code)
		require.Contains(t, stderr.String(), "invalid application")
	})

	t.Run("too many arguments", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := execute(context.Background(), []string{"1", "2", "3"}, &stdout, &stderr)
		require.Equal(t, 1, code)
	})

	t.Run("version", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := execute(context.Background(), []string{"--version"}, &stdout, &stderr)
		require.Equal(t, 0, code)
		require.Contains(t, stdout.String(), "dev")
	})
}
