// Package mcpserver exposes the linker as a Model Context Protocol tool.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/metalagman/tclink/internal/linkage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// ToolName is the name of the link tool.
const ToolName = "link_test_cases"

// LinkInput is the tool input.
type LinkInput struct {
	TestCases  []map[string]any `json:"test_cases"   jsonschema:"test case records; only linked_acceptance_criteria and notes are interpreted"`
	KnownACIDs []string         `json:"known_ac_ids" jsonschema:"ordered known acceptance criteria ids; the first one is assigned to unlinked test cases"`
}

// LinkOutput is the tool output.
type LinkOutput struct {
	TestCases   []map[string]any `json:"test_cases"`
	AutoLinked  []int            `json:"auto_linked"`
	DefaultACID string           `json:"default_ac_id"`
}

// New builds an MCP server with the link tool registered.
func New(version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "tclink", Version: version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolName,
		Description: "Ensure every test case links at least one acceptance criterion. Unlinked test cases get the first known id and an audit note.",
	}, handleLink)
	return server
}

// Serve runs the server over stdio until the client disconnects or ctx ends.
func Serve(ctx context.Context, version string) error {
	log.Info().Str("tool", ToolName).Msg("serving mcp over stdio")
	return New(version).Run(ctx, &mcp.StdioTransport{})
}

func handleLink(ctx context.Context, _ *mcp.CallToolRequest, in LinkInput) (*mcp.CallToolResult, LinkOutput, error) {
	out, err := Link(ctx, in)
	if err != nil {
		return nil, LinkOutput{}, err
	}
	return nil, out, nil
}

// Link applies the linker to tool input.
func Link(ctx context.Context, in LinkInput) (LinkOutput, error) {
	cases := make([]*linkage.TestCase, 0, len(in.TestCases))
	for i, raw := range in.TestCases {
		if raw == nil {
			return LinkOutput{}, fmt.Errorf("test case %d: %w", i, linkage.ErrNilTestCase)
		}
		data, err := json.Marshal(raw)
		if err != nil {
			return LinkOutput{}, fmt.Errorf("encode test case %d: %w", i, err)
		}
		tc := &linkage.TestCase{}
		if err := json.Unmarshal(data, tc); err != nil {
			return LinkOutput{}, fmt.Errorf("test case %d: %w", i, err)
		}
		cases = append(cases, tc)
	}

	res, err := linkage.LinkConcurrent(ctx, cases, in.KnownACIDs, 1)
	if err != nil {
		return LinkOutput{}, err
	}

	out := LinkOutput{
		TestCases:   make([]map[string]any, 0, len(cases)),
		AutoLinked:  res.AutoLinked,
		DefaultACID: res.DefaultID,
	}
	if out.AutoLinked == nil {
		out.AutoLinked = []int{}
	}
	for i, tc := range cases {
		data, err := json.Marshal(tc)
		if err != nil {
			return LinkOutput{}, fmt.Errorf("encode linked test case %d: %w", i, err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return LinkOutput{}, fmt.Errorf("decode linked test case %d: %w", i, err)
		}
		out.TestCases = append(out.TestCases, m)
	}
	log.Debug().Int("total", res.Total).Int("auto_linked", len(res.AutoLinked)).Msg("mcp link")
	return out, nil
}
