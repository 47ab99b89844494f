// Package backend manages the lifecycle of the gateway's upstream backends.
//
// Each configured backend gets one Supervisor, which owns a single
// transport.Client at a time: it connects with exponential backoff, runs a
// periodic health probe, walks the connection state machine
// (Initializing → Connected → Degraded → Error → Reconnecting), and tears
// the channel down cooperatively on Stop. A failed channel is never resumed;
// recovery always dials a fresh client through the transport factory.
//
// # Registry
//
// The Registry is the single source of truth for which backends exist and
// whether they are healthy:
//
//	registry := backend.NewRegistry(backend.Settings{})
//	_, err := registry.Register(backend.Config{
//	    Name:     "github",
//	    Kind:     transport.KindProcess,
//	    Priority: 10,
//	    Enabled:  true,
//	    Process:  &transport.ProcessConfig{Command: "github-mcp"},
//	})
//
// Registration is atomic; a duplicate name is rejected, never overwritten.
// State transitions are published on Watch channels. The registry knows
// nothing about capability aggregation; subscribers react to events however
// they like.
package backend
