package transport

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// KindMemory is the kind reported by clients built with NewMemoryFactory.
// It is not a wire transport and is not accepted by backend configuration;
// memory factories are injected directly.
const KindMemory Kind = "memory"

// NewMemoryFactory returns a Factory whose clients dial through the given
// function. It exists for in-process backends and tests, where each connect
// attempt needs a fresh in-memory transport wired to a live server.
func NewMemoryFactory(dial func(ctx context.Context) (mcp.Transport, error)) Factory {
	return func() Client {
		return newClient(KindMemory, dial)
	}
}
