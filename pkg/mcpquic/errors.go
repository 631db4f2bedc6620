package mcpquic

import (
	"errors"

	"github.com/quic-go/quic-go"
)

// StreamErrorProtocolConfusion cancels a stream that did not open with the
// MCP magic bytes.
const StreamErrorProtocolConfusion quic.StreamErrorCode = 0x02

// QUIC connection-level error codes.
const (
	ConnErrorNoError           quic.ApplicationErrorCode = 0x00
	ConnErrorUnsupportedALPN   quic.ApplicationErrorCode = 0x01
	ConnErrorProtocolViolation quic.ApplicationErrorCode = 0x03
)

var (
	ErrInvalidMagicBytes = errors.New("invalid magic bytes: expected MCP1")
	ErrUnsupportedALPN   = errors.New("ALPN negotiation failed: dataload-mcp-v1 not selected")
)
