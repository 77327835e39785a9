package wsproto

// Frame is a single decoded WebSocket frame. The mask bit and masking key
// are consumed by ReadFrame and never surface here; WriteFrame never sets
// the mask bit, since server-to-client frames are never masked (RFC 6455
// §5.1).
type Frame struct {
	Final   bool
	Opcode  Opcode
	Payload []byte
}

// closeFrame is the synthetic frame ReadFrame returns whenever the peer
// stream stalls or closes mid-frame, so callers can tear the session down
// uniformly regardless of which read step failed.
func closeFrame() Frame {
	return Frame{Final: true, Opcode: OpClose}
}
