package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// newTestServer builds an in-process MCP server with one echo action and,
// optionally, one text resource.
func newTestServer(withResources bool) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "fake", Version: "1.0.0"}, nil)

	server.AddTool(
		&mcp.Tool{
			Name:        "echo",
			Description: "Echoes the msg argument",
			InputSchema: map[string]any{"type": "object"},
		},
		func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args map[string]any
			_ = json.Unmarshal(req.Params.Arguments, &args)
			msg, _ := args["msg"].(string)
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: msg}},
			}, nil
		},
	)

	server.AddTool(
		&mcp.Tool{
			Name:        "slow",
			Description: "Sleeps longer than any sane deadline",
			InputSchema: map[string]any{"type": "object"},
		},
		func(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "done"}},
			}, nil
		},
	)

	if withResources {
		server.AddResource(
			&mcp.Resource{
				URI:      "doc://greeting",
				Name:     "greeting",
				MIMEType: "text/plain",
			},
			func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
				return &mcp.ReadResourceResult{
					Contents: []*mcp.ResourceContents{
						{URI: req.Params.URI, MIMEType: "text/plain", Text: "hello"},
					},
				}, nil
			},
		)
	}

	return server
}

// serverFactory wires each connect attempt to a fresh in-memory transport
// pair against the given server.
func serverFactory(server *mcp.Server) Factory {
	return NewMemoryFactory(func(ctx context.Context) (mcp.Transport, error) {
		clientTr, serverTr := mcp.NewInMemoryTransports()
		if _, err := server.Connect(ctx, serverTr, nil); err != nil {
			return nil, err
		}
		return clientTr, nil
	})
}

func connectClient(t *testing.T, server *mcp.Server) Client {
	t.Helper()
	ctx := context.Background()

	c := serverFactory(server)()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if _, err := c.Handshake(ctx); err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_Lifecycle(t *testing.T) {
	ctx := context.Background()

	c := serverFactory(newTestServer(false))()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.Connect(ctx); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
	}

	desc, err := c.Handshake(ctx)
	if err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}
	if desc.Name != "fake" {
		t.Errorf("Descriptor.Name = %q, want %q", desc.Name, "fake")
	}
	if desc.SupportsResources {
		t.Error("Descriptor.SupportsResources = true, want false")
	}

	actions, err := c.ListActions(ctx)
	if err != nil {
		t.Fatalf("ListActions() error = %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("ListActions() returned %d actions, want 2", len(actions))
	}

	result, err := c.InvokeAction(ctx, "echo", map[string]any{"msg": "hi"})
	if err != nil {
		t.Fatalf("InvokeAction() error = %v", err)
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok || text.Text != "hi" {
		t.Errorf("InvokeAction() content = %#v, want text %q", result.Content[0], "hi")
	}

	if err := c.Probe(ctx); err != nil {
		t.Errorf("Probe() error = %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := c.ListActions(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ListActions() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestClient_HandshakeRequiresConnect(t *testing.T) {
	c := serverFactory(newTestServer(false))()
	if _, err := c.Handshake(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Handshake() error = %v, want ErrNotConnected", err)
	}
}

func TestClient_ListResources_Unsupported(t *testing.T) {
	c := connectClient(t, newTestServer(false))

	resources, err := c.ListResources(context.Background())
	if err != nil {
		t.Fatalf("ListResources() error = %v", err)
	}
	if len(resources) != 0 {
		t.Errorf("ListResources() returned %d resources, want 0", len(resources))
	}
}

func TestClient_ReadResource(t *testing.T) {
	ctx := context.Background()
	c := connectClient(t, newTestServer(true))

	resources, err := c.ListResources(ctx)
	if err != nil {
		t.Fatalf("ListResources() error = %v", err)
	}
	if len(resources) != 1 || resources[0].URI != "doc://greeting" {
		t.Fatalf("ListResources() = %#v, want one doc://greeting", resources)
	}

	payload, err := c.ReadResource(ctx, "doc://greeting")
	if err != nil {
		t.Fatalf("ReadResource() error = %v", err)
	}
	if len(payload.Contents) != 1 || payload.Contents[0].Text != "hello" {
		t.Errorf("ReadResource() contents = %#v, want text %q", payload.Contents, "hello")
	}
}

func TestClient_InvokeAction_Timeout(t *testing.T) {
	c := connectClient(t, newTestServer(false))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.InvokeAction(ctx, "slow", nil); !errors.Is(err, ErrTimeout) {
		t.Errorf("InvokeAction() error = %v, want ErrTimeout", err)
	}
}

func TestTranslate(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"eof", io.EOF, ErrConnectionLost},
		{"closed pipe", io.ErrClosedPipe, ErrConnectionLost},
		{"method not found", errors.New("jsonrpc2: method not found"), ErrUnsupportedOperation},
		{"parse failure", errors.New("failed to parse message"), ErrProtocolViolation},
		{"unknown", errors.New("boom"), ErrConnectionLost},
		{"already classified", fmt.Errorf("wrapped: %w", ErrTimeout), ErrTimeout},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := translate(tc.err)
			if tc.want == nil {
				if got != nil {
					t.Fatalf("translate(%v) = %v, want nil", tc.err, got)
				}
				return
			}
			if !errors.Is(got, tc.want) {
				t.Errorf("translate(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestTranslate_CancellationPassesThrough(t *testing.T) {
	err := translate(context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("translate(Canceled) = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectionLost) {
		t.Error("cancellation should not be classified as a transport failure")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(fmt.Errorf("%w: x", ErrConnectionLost)) {
		t.Error("ErrConnectionLost should be retryable")
	}
	if !Retryable(fmt.Errorf("%w: x", ErrTimeout)) {
		t.Error("ErrTimeout should be retryable")
	}
	if Retryable(fmt.Errorf("%w: x", ErrProtocolViolation)) {
		t.Error("ErrProtocolViolation should not be retryable")
	}
	if Retryable(fmt.Errorf("%w: x", ErrUnsupportedOperation)) {
		t.Error("ErrUnsupportedOperation should not be retryable")
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := (ProcessConfig{}).Validate(); err == nil {
		t.Error("ProcessConfig.Validate() should require a command")
	}
	if err := (ProcessConfig{Command: "server"}).Validate(); err != nil {
		t.Errorf("ProcessConfig.Validate() error = %v", err)
	}
	if err := (StreamConfig{}).Validate(); err == nil {
		t.Error("StreamConfig.Validate() should require an endpoint")
	}
	if err := (StreamConfig{Endpoint: "ftp://x"}).Validate(); err == nil {
		t.Error("StreamConfig.Validate() should reject non-http schemes")
	}
	if err := (RequestConfig{Endpoint: "https://mcp.example.com/mcp"}).Validate(); err != nil {
		t.Errorf("RequestConfig.Validate() error = %v", err)
	}
}

func TestKind_Valid(t *testing.T) {
	for _, k := range []Kind{KindStream, KindProcess, KindRequest} {
		if !k.Valid() {
			t.Errorf("Kind(%q).Valid() = false, want true", k)
		}
	}
	if Kind("carrier-pigeon").Valid() {
		t.Error("unknown kind should not be valid")
	}
	if KindMemory.Valid() {
		t.Error("memory kind is not a wire transport kind")
	}
}
