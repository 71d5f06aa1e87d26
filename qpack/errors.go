package qpack

import "fmt"

// Error codes per RFC 9204 §6, referenced by StreamException/SessionException.
const (
	ErrCodeGeneralProtocol  = 0x0101 // H3_GENERAL_PROTOCOL_ERROR
	ErrCodeEncoderStream    = 0x0201 // QPACK_ENCODER_STREAM_ERROR
	ErrCodeDecoderStream    = 0x0202 // QPACK_DECODER_STREAM_ERROR
)

// StreamException is per-stream and non-fatal to the connection: an
// invalid header name, for example. The caller aborts the offending
// stream but the session and encoder continue.
type StreamException struct {
	Code    uint64
	Message string
}

func (e *StreamException) Error() string {
	return fmt.Sprintf("qpack: stream exception %#x: %s", e.Code, e.Message)
}

func newStreamException(code uint64, format string, args ...interface{}) *StreamException {
	return &StreamException{Code: code, Message: fmt.Sprintf(format, args...)}
}

// SessionException is connection-fatal: an encoder-stream protocol
// violation, an unknown instruction, or an acknowledgement referencing an
// unknown stream. The caller must close the session with this code.
type SessionException struct {
	Code    uint64
	Message string
}

func (e *SessionException) Error() string {
	return fmt.Sprintf("qpack: session exception %#x: %s", e.Code, e.Message)
}

func newSessionException(code uint64, format string, args ...interface{}) *SessionException {
	return &SessionException{Code: code, Message: fmt.Sprintf(format, args...)}
}
