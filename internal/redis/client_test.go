package redis

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		addr    string
		db      int
		wantErr bool
	}{
		{"host and port", "redis://localhost:6380", "localhost:6380", 0, false},
		{"default port", "redis://cache", "cache:6379", 0, false},
		{"database in path", "redis://localhost:6379/3", "localhost:6379", 3, false},
		{"empty", "", "", 0, true},
		{"bad scheme", "http://localhost", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer client.Close()
			require.Equal(t, tt.addr, client.Options().Addr)
			require.Equal(t, tt.db, client.Options().DB)
		})
	}
}

func TestPingAndCloseAll(t *testing.T) {
	require := require.New(t)
	mr := miniredis.RunT(t)

	a, err := NewClient("redis://" + mr.Addr())
	require.NoError(err)
	b, err := NewClient("redis://" + mr.Addr() + "/1")
	require.NoError(err)

	require.True(Ping(context.Background(), a, "monitor", slog.Default()))
	require.False(Ping(context.Background(), nil, "transport", slog.Default()))

	// Duplicates and nils are skipped.
	require.NoError(CloseAll(a, nil, b, a))
}
