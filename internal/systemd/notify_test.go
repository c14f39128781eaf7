package systemd

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/stretchr/testify/require"
)

func TestNotifierStates(t *testing.T) {
	var states []string
	n := &Notifier{
		logger: slog.Default(),
		send: func(state string) (bool, error) {
			states = append(states, state)
			return true, nil
		},
	}

	n.Ready()
	n.Stopping()

	require.Equal(t, []string{daemon.SdNotifyReady, daemon.SdNotifyStopping}, states)
}

func TestNotifierOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	// Must not panic or block without a socket.
	n := NewNotifier(nil)
	n.Ready()
	n.Stopping()

	n.send = func(string) (bool, error) { return false, errors.New("socket gone") }
	n.Ready()
}
