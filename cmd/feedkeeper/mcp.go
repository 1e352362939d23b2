package main

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// NewMCPCommand creates the mcp command.
func NewMCPCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "mcp",
		Short:        "Serve the read-only query tools over MCP on stdio",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := rootOpts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer done()
			srv := mcp.NewServer(&mcp.Implementation{Name: "feedkeeper", Version: version}, nil)
			svc.RegisterMCP(srv)
			return srv.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}
