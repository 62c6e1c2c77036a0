//go:build !linux

package unix

import (
	"fmt"
	"net"
	"runtime"

	"github.com/ValentinKolb/hed/rpc/transport/base"
)

// peerCredentials is only implemented on linux, every peer is refused elsewhere
func peerCredentials(_ net.Conn) (base.Principal, error) {
	return base.Principal{}, fmt.Errorf("peer credentials are not supported on %s", runtime.GOOS)
}
