// Package base provides the session substrate of the hed RPC stack: framing,
// pooled messages, server side connections and the accept point. It is
// independent of the concrete socket type, which is plugged in through
// IServerConnector / IClientConnector.
//
// Frame format:
//
//	[type u8][xid u64][len u32][payload]
//
// Key Components:
//
//   - Message: a request, notification or reply whose payload is a chain of
//     fixed size chunks taken from a BufferPool. Message implements
//     io.Reader / io.Writer so codecs stream over the chunks without needing
//     contiguous memory. Reading past the end yields ErrNoData, writing past
//     the pool limit yields ErrNoBuffers.
//
//   - Conn: one accepted connection with its inbound queue, its table of
//     server originated requests awaiting a reply, the peer Principal and an
//     opaque context slot used by the dispatcher.
//
//   - AcceptPoint: accepts connections, runs one reader goroutine per
//     connection and publishes connect / message / close events on a single
//     channel. The consumer calls Dispatch for each event, so every
//     connection state is only ever touched by that one goroutine.
//
//   - ClientTransport: the client side, correlating replies to requests by
//     xid with retries, exponential backoff and reconnects.
//
// Performance Optimizations:
//
//   - Buffer Pooling: chunks come from a sync.Pool, reducing GC pressure.
//
//   - Frame Batching: frames are written with net.Buffers, combining header
//     and chunks into a single vectored write.
package base
