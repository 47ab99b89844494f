package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// StreamConfig configures a server-sent-events transport: responses arrive
// on a hanging GET stream, requests go out as POSTs.
type StreamConfig struct {
	// Endpoint is the SSE endpoint URL. Required.
	Endpoint string

	// HTTPClient overrides the client used for the stream and posts.
	// Nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Validate checks that the configuration is usable.
func (c StreamConfig) Validate() error {
	return validateEndpoint("stream", c.Endpoint)
}

// Factory returns a Factory producing SSE clients.
func (c StreamConfig) Factory() Factory {
	return func() Client {
		return newClient(KindStream, func(_ context.Context) (mcp.Transport, error) {
			if err := c.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
			}
			return &mcp.SSEClientTransport{
				Endpoint:   c.Endpoint,
				HTTPClient: c.HTTPClient,
			}, nil
		})
	}
}

func validateEndpoint(kind, endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%s transport: endpoint is required", kind)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%s transport: invalid endpoint %q: %v", kind, endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s transport: endpoint %q must be http or https", kind, endpoint)
	}
	return nil
}
