// Package codec adapts msgpack encoding to the chunk chains of transport
// messages.
//
// A Decoder reads through a page sized staging reader that is filled from
// the inbound chunks of a message; a Decoder never blocks, the end of the
// payload is reported as io.EOF. An Encoder stages output in a page sized
// writer that is flushed into the outbound chunk chain; exhausting the
// message buffer limit is reported as ErrNoMemory.
//
// Staging buffers and msgpack state are pooled. Decode and Encode scope a
// coder to a function so it is always closed, and Encode discards the staged
// output when the function fails.
package codec
