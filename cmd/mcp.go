package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/btcmap-triage/internal/mcp"
	"github.com/joescharf/btcmap-triage/internal/outreach"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP-capable assistant triage submissions and read stored
verdicts. Configure it with:

  {
    "mcpServers": {
      "btctriage": { "command": "btctriage", "args": ["mcp"] }
    }
  }

Available tools: triage_submission, triage_list_verdicts,
triage_get_verdict, triage_explain_score`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := getStore()
		if err != nil {
			return err
		}

		// stdout carries the protocol; logs go to stderr.
		pipeline, closeCache, err := buildPipeline(ctx, s, cfg, newLogger(), outreach.WithoutWaiting())
		if err != nil {
			return err
		}
		defer closeCache()

		return mcp.NewServer(s, pipeline, cfg, buildVersion).ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
