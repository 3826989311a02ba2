// Package mcpserver exposes the orchestrator as MCP tools so other agents
// can list capabilities and run objectives.
package mcpserver

import (
	"context"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/metalagman/jota/internal/capability"
	"github.com/metalagman/jota/internal/orchestrator"
)

// Tool names.
const (
	ToolListCapabilities = "listar_capacidades"
	ToolRunObjective     = "executar_objetivo"
)

// Orchestrator is what the tools call into.
type Orchestrator interface {
	Capabilities() []capability.Capability
	Run(ctx context.Context, objective string, ro orchestrator.RunOptions) (*orchestrator.Execution, error)
}

// ListInput takes no arguments.
type ListInput struct{}

// CapabilityInfo describes one capability to an MCP client.
type CapabilityInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
}

// ListOutput is the listar_capacidades result.
type ListOutput struct {
	Capabilities []CapabilityInfo `json:"capabilities"`
}

// RunInput is the executar_objetivo argument.
type RunInput struct {
	Objective string `json:"objetivo" jsonschema:"the teacher's goal in natural language"`
	Owner     string `json:"owner,omitempty" jsonschema:"teacher id used to look up and save activities"`
}

// RunOutput summarizes a finished run.
type RunOutput struct {
	RunID      string   `json:"run_id"`
	State      string   `json:"state"`
	Narrations []string `json:"narrations"`
	Error      string   `json:"error,omitempty"`
}

// New builds the MCP server with both tools registered.
func New(orch Orchestrator, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "jota", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolListCapabilities,
		Description: "Lists the capabilities the planner can use.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, ListOutput, error) {
		caps := orch.Capabilities()
		out := ListOutput{Capabilities: make([]CapabilityInfo, 0, len(caps))}
		for _, c := range caps {
			out.Capabilities = append(out.Capabilities, CapabilityInfo{
				Name:        c.Name,
				DisplayName: c.DisplayName,
				Kind:        string(c.Kind),
				Description: c.Description,
			})
		}
		return nil, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolRunObjective,
		Description: "Plans and executes a teacher's objective and returns the narration of every step.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in RunInput) (*mcp.CallToolResult, RunOutput, error) {
		objective := strings.TrimSpace(in.Objective)
		if objective == "" {
			return nil, RunOutput{}, errors.New("objetivo is required")
		}
		exec, err := orch.Run(ctx, objective, orchestrator.RunOptions{Owner: in.Owner})
		out := RunOutput{
			RunID:      exec.RunID,
			State:      string(exec.State),
			Narrations: make([]string, 0, len(exec.Narrations)),
		}
		for _, n := range exec.Narrations {
			out.Narrations = append(out.Narrations, n.Text)
		}
		if err != nil {
			log.Warn().Err(err).Str("run_id", exec.RunID).Msg("mcp run did not complete")
			out.Error = err.Error()
		}
		return nil, out, nil
	})

	return server
}

// ServeStdio runs the server on stdin/stdout until ctx ends or the client
// disconnects.
func ServeStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
