package cmd

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/ValentinKolb/hed/rpc/server"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain error", errors.New("boom"), 1},
		{"terminate", &server.ShutdownError{Signal: syscall.SIGTERM}, 143},
		{"interrupt", &server.ShutdownError{Signal: syscall.SIGINT}, 130},
		{"wrapped hangup", fmt.Errorf("serve: %w", &server.ShutdownError{Signal: syscall.SIGHUP}), 129},
		{"non unix signal", &server.ShutdownError{Signal: os.Interrupt}, 130},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("Expected exit code %d, got %d", tt.want, got)
			}
		})
	}
}
