package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RequestConfig configures a request/response streamable HTTP transport:
// a single endpoint carries both requests and the optional response stream.
type RequestConfig struct {
	// Endpoint is the streamable HTTP endpoint URL. Required.
	Endpoint string

	// HTTPClient overrides the client used for requests.
	// Nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Validate checks that the configuration is usable.
func (c RequestConfig) Validate() error {
	return validateEndpoint("request", c.Endpoint)
}

// Factory returns a Factory producing streamable HTTP clients.
func (c RequestConfig) Factory() Factory {
	return func() Client {
		return newClient(KindRequest, func(_ context.Context) (mcp.Transport, error) {
			if err := c.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
			}
			return &mcp.StreamableClientTransport{
				Endpoint:   c.Endpoint,
				HTTPClient: c.HTTPClient,
			}, nil
		})
	}
}
