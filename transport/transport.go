package transport

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Kind identifies the wire transport a backend speaks.
type Kind string

const (
	// KindStream is a server-sent-events transport (hanging GET plus POST).
	KindStream Kind = "stream"

	// KindProcess is a subprocess transport over stdin/stdout.
	KindProcess Kind = "process"

	// KindRequest is a request/response streamable HTTP transport.
	KindRequest Kind = "request"
)

// Valid reports whether k is one of the supported transport kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindStream, KindProcess, KindRequest:
		return true
	}
	return false
}

// Sentinel errors for transport failure classification. Every network,
// process, or protocol failure surfaced by a Client wraps exactly one of
// these.
var (
	// ErrConnectionLost indicates the underlying channel failed or closed.
	ErrConnectionLost = errors.New("connection lost")

	// ErrProtocolViolation indicates the peer sent a malformed or
	// out-of-contract message.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrTimeout indicates the caller's deadline elapsed before the
	// operation completed.
	ErrTimeout = errors.New("operation timed out")

	// ErrUnsupportedOperation indicates the backend does not implement the
	// requested operation.
	ErrUnsupportedOperation = errors.New("operation not supported")

	// ErrNotConnected is returned when an operation requires a completed
	// Connect and Handshake.
	ErrNotConnected = errors.New("transport not connected")

	// ErrAlreadyConnected is returned by Connect on a client that already
	// holds a live channel.
	ErrAlreadyConnected = errors.New("transport already connected")
)

// Descriptor identifies a backend after a successful handshake.
type Descriptor struct {
	// Name is the backend-reported implementation name.
	Name string

	// Version is the backend-reported implementation version.
	Version string

	// ProtocolVersion is the negotiated protocol revision.
	ProtocolVersion string

	// Instructions is optional backend-provided usage guidance.
	Instructions string

	// SupportsResources reports whether the backend advertises the
	// resource capability. When false, ListResources returns an empty
	// list without a wire call.
	SupportsResources bool
}

// Client is the uniform capability interface implemented once per transport
// kind. A Client represents a single connection: after Close (or a lost
// channel) a fresh Client is built via its Factory rather than reusing the
// old one.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: all methods honor cancellation/deadlines; an expired deadline
//   surfaces as ErrTimeout and aborts the underlying wire call.
// - Errors: failures wrap ErrConnectionLost, ErrProtocolViolation,
//   ErrTimeout, or ErrUnsupportedOperation.
// - Ordering: Connect, then Handshake exactly once, then any other method.
// - Responses that cannot be correlated to an outstanding request are
//   dropped by the session layer, never surfaced to callers.
type Client interface {
	// Kind returns the wire transport kind.
	Kind() Kind

	// Connect establishes the underlying channel.
	Connect(ctx context.Context) error

	// Handshake performs the protocol initialization exchange and returns
	// the backend descriptor. Must be called exactly once per successful
	// Connect before any other operation.
	Handshake(ctx context.Context) (Descriptor, error)

	// ListActions returns the backend's invokable actions. Idempotent.
	ListActions(ctx context.Context) ([]*mcp.Tool, error)

	// ListResources returns the backend's readable resources. Idempotent.
	// Backends without resource support yield an empty list, not an error.
	ListResources(ctx context.Context) ([]*mcp.Resource, error)

	// InvokeAction executes a named action. A result with IsError set is a
	// valid result: the action ran and reported a domain failure.
	InvokeAction(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)

	// ReadResource fetches a resource payload by URI.
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)

	// Probe is a cheap, side-effect-free liveness check.
	Probe(ctx context.Context) error

	// Close tears down the channel. Safe to call more than once.
	Close() error
}

// Factory builds a fresh, unconnected Client. Reconnection always goes
// through the factory so a failed channel is never resumed.
type Factory func() Client

// Retryable reports whether err is a transient transport failure worth a
// reconnect attempt. Protocol violations and unsupported operations are not
// retryable.
func Retryable(err error) bool {
	return errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrTimeout)
}
