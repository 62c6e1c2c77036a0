package unix

import (
	"fmt"
	"net"
	"os"

	"github.com/ValentinKolb/hed/rpc/common"
	"github.com/ValentinKolb/hed/rpc/transport/base"
)

// serverConnector implements the IServerConnector interface for Unix sockets
type serverConnector struct{}

// NewServerConnector returns the unix socket server connector
func NewServerConnector() base.IServerConnector {
	return &serverConnector{}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "unix"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	socketPath := config.Endpoint

	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	// Create Unix socket listener
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Unix socket: %w", err)
	}

	if config.SocketMode != 0 {
		if err := os.Chmod(socketPath, config.SocketMode); err != nil {
			_ = listener.Close()
			return nil, fmt.Errorf("failed to set socket permissions: %w", err)
		}
	}

	return listener, nil
}

func (c *serverConnector) Peer(conn net.Conn) (base.Principal, error) {
	return peerCredentials(conn)
}
