package transport

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ProcessConfig configures a subprocess transport. The backend is launched
// as a child process and spoken to over its stdin/stdout.
type ProcessConfig struct {
	// Command is the executable to launch. Required.
	Command string

	// Args are passed to the executable.
	Args []string

	// Env entries ("KEY=VALUE") are appended to the parent environment.
	Env []string

	// Dir is the working directory. Empty means inherit.
	Dir string
}

// Validate checks that the configuration is usable.
func (c ProcessConfig) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("process transport: command is required")
	}
	return nil
}

// Factory returns a Factory producing subprocess clients. Each client
// launches a fresh child process on Connect, so a dead backend process is
// replaced rather than resumed.
func (c ProcessConfig) Factory() Factory {
	return func() Client {
		return newClient(KindProcess, func(_ context.Context) (mcp.Transport, error) {
			path, err := exec.LookPath(c.Command)
			if err != nil {
				return nil, fmt.Errorf("%w: command %q: %v", ErrConnectionLost, c.Command, err)
			}
			cmd := exec.Command(path, c.Args...)
			if len(c.Env) > 0 {
				cmd.Env = append(os.Environ(), c.Env...)
			}
			cmd.Dir = c.Dir
			return &mcp.CommandTransport{Command: cmd}, nil
		})
	}
}
