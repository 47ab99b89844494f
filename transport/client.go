package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// clientInfo identifies this gateway to backends during the handshake.
var clientInfo = &mcp.Implementation{
	Name:    "toolgateway",
	Version: "0.2.0",
}

// dialFunc builds the concrete wire transport for one connection attempt.
type dialFunc func(ctx context.Context) (mcp.Transport, error)

// client is the shared Client implementation. The three transport kinds
// differ only in how they dial; session semantics, error translation, and
// capability listing are identical, so they share this type.
//
// Request/response correlation (including dropping stale or duplicate
// response IDs) is handled by the protocol session; client never sees an
// uncorrelated frame.
type client struct {
	kind Kind
	dial dialFunc

	mu      sync.Mutex
	tr      mcp.Transport
	session *mcp.ClientSession
	desc    Descriptor
	ready   bool
}

func newClient(kind Kind, dial dialFunc) *client {
	return &client{kind: kind, dial: dial}
}

// Kind returns the wire transport kind.
func (c *client) Kind() Kind {
	return c.kind
}

// Connect establishes the underlying channel.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tr != nil {
		return ErrAlreadyConnected
	}
	tr, err := c.dial(ctx)
	if err != nil {
		return translate(err)
	}
	c.tr = tr
	return nil
}

// Handshake performs the protocol initialization exchange.
func (c *client) Handshake(ctx context.Context) (Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tr == nil {
		return Descriptor{}, ErrNotConnected
	}
	if c.ready {
		return Descriptor{}, fmt.Errorf("%w: handshake already completed", ErrProtocolViolation)
	}

	session, err := mcp.NewClient(clientInfo, nil).Connect(ctx, c.tr, nil)
	if err != nil {
		return Descriptor{}, translate(err)
	}

	desc := Descriptor{}
	if init := session.InitializeResult(); init != nil {
		if init.ServerInfo != nil {
			desc.Name = init.ServerInfo.Name
			desc.Version = init.ServerInfo.Version
		}
		desc.ProtocolVersion = init.ProtocolVersion
		desc.Instructions = init.Instructions
		if init.Capabilities != nil && init.Capabilities.Resources != nil {
			desc.SupportsResources = true
		}
	}

	c.session = session
	c.desc = desc
	c.ready = true
	return desc, nil
}

// ListActions returns the backend's invokable actions.
func (c *client) ListActions(ctx context.Context) ([]*mcp.Tool, error) {
	session, err := c.live()
	if err != nil {
		return nil, err
	}
	res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, translate(err)
	}
	return res.Tools, nil
}

// ListResources returns the backend's readable resources. A backend that
// advertises fewer capabilities than another is normal, not exceptional:
// missing resource support yields an empty list.
func (c *client) ListResources(ctx context.Context) ([]*mcp.Resource, error) {
	c.mu.Lock()
	supported := c.desc.SupportsResources
	c.mu.Unlock()

	session, err := c.live()
	if err != nil {
		return nil, err
	}
	if !supported {
		return []*mcp.Resource{}, nil
	}
	res, err := session.ListResources(ctx, &mcp.ListResourcesParams{})
	if err != nil {
		terr := translate(err)
		if errors.Is(terr, ErrUnsupportedOperation) {
			return []*mcp.Resource{}, nil
		}
		return nil, terr
	}
	return res.Resources, nil
}

// InvokeAction executes a named action on the backend.
func (c *client) InvokeAction(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	session, err := c.live()
	if err != nil {
		return nil, err
	}
	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, translate(err)
	}
	return res, nil
}

// ReadResource fetches a resource payload by URI.
func (c *client) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	session, err := c.live()
	if err != nil {
		return nil, err
	}
	res, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, translate(err)
	}
	return res, nil
}

// Probe is a cheap liveness check against the live session.
func (c *client) Probe(ctx context.Context) error {
	session, err := c.live()
	if err != nil {
		return err
	}
	if err := session.Ping(ctx, nil); err != nil {
		return translate(err)
	}
	return nil
}

// Close tears down the channel. Safe to call more than once.
func (c *client) Close() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.tr = nil
	c.ready = false
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	if err := session.Close(); err != nil {
		return translate(err)
	}
	return nil
}

func (c *client) live() (*mcp.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready || c.session == nil {
		return nil, ErrNotConnected
	}
	return c.session, nil
}

// translate maps an arbitrary session or wire error onto the transport
// error taxonomy. Already-classified errors pass through unchanged, as do
// plain cancellations, which belong to the caller.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConnectionLost),
		errors.Is(err, ErrProtocolViolation),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrUnsupportedOperation),
		errors.Is(err, ErrNotConnected):
		return err
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "method not found"),
		strings.Contains(msg, "not supported"),
		strings.Contains(msg, "unsupported"):
		return fmt.Errorf("%w: %v", ErrUnsupportedOperation, err)
	case strings.Contains(msg, "parse"),
		strings.Contains(msg, "unmarshal"),
		strings.Contains(msg, "invalid message"),
		strings.Contains(msg, "invalid character"):
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	return fmt.Errorf("%w: %v", ErrConnectionLost, err)
}
