//go:build linux

package unix

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/ValentinKolb/hed/rpc/transport/base"
	sysunix "golang.org/x/sys/unix"
)

// peerCredentials reads SO_PEERCRED of the connected socket
func peerCredentials(conn net.Conn) (base.Principal, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return base.Principal{}, fmt.Errorf("not a unix socket connection: %T", conn)
	}

	raw, err := uc.SyscallConn()
	if err != nil {
		return base.Principal{}, err
	}

	var cred *sysunix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = sysunix.GetsockoptUcred(int(fd), sysunix.SOL_SOCKET, sysunix.SO_PEERCRED)
	})
	if err != nil {
		return base.Principal{}, err
	}
	if credErr != nil {
		return base.Principal{}, fmt.Errorf("SO_PEERCRED: %w", credErr)
	}

	p := base.Principal{UID: cred.Uid, GID: cred.Gid, PID: cred.Pid}
	p.Groups, err = processGroups(cred.Pid)
	if err != nil {
		// the peer may already be gone, fall back to the account's groups
		p.Groups, err = accountGroups(cred.Uid)
		if err != nil {
			return base.Principal{}, err
		}
	}
	return p, nil
}

// processGroups reads the supplementary groups of pid from procfs
func processGroups(pid int32) ([]uint32, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Groups:") {
			continue
		}
		return parseGroups(strings.Fields(strings.TrimPrefix(line, "Groups:")))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no Groups line in /proc/%d/status", pid)
}
