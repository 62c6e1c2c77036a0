// Package dispatch routes the messages of a connection to handlers.
//
// An AuthList built with NewBuilder grants each method id to one group.
// When a connection is accepted the Dispatcher installs a handler table
// containing only the methods the peer may call: the super user may call
// every method, other peers need the entry's group as primary or
// supplementary group. Access is denied by default and a peer without any
// permitted method is refused.
//
// Every message starts with a msgpack encoded uint32 method id. Requests and
// notifications get the decoded id stamped; replies must carry the id of the
// request they answer. Undecodable messages (ErrDecode), mismatched replies
// (ErrProtocol) and calls of methods outside the table (ErrPermission) close
// the connection. Handler errors are logged and the connection stays open.
//
// Usage:
//
//	list, err := dispatch.NewBuilder(maxID).
//		Allow(0, readGID, readHandler).
//		Allow(1, writeGID, writeHandler).
//		Build()
//	if err != nil {
//		return err
//	}
//	accept, err := dispatch.OpenAccept(unix.NewServerConnector(), config, list)
package dispatch
