// Package transport provides the uniform capability interface the gateway
// uses to speak to heterogeneous backends.
//
// A backend is reachable over one of three wire kinds: a server-sent-events
// stream (KindStream), a subprocess over stdio (KindProcess), or streamable
// HTTP (KindRequest). All three expose the same Client interface, so the
// rest of the system never branches on transport kind.
//
// Clients are single-connection objects built from a Factory. Lifecycle:
//
//	client := factory()
//	err := client.Connect(ctx)
//	desc, err := client.Handshake(ctx)
//	actions, err := client.ListActions(ctx)
//	result, err := client.InvokeAction(ctx, "search", args)
//	err = client.Close()
//
// Every failure is translated onto a small taxonomy (ErrConnectionLost,
// ErrProtocolViolation, ErrTimeout, ErrUnsupportedOperation) so callers can
// classify without inspecting wire details.
package transport
