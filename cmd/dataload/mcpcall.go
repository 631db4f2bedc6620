package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/subsurface-tools/dataload/pkg/mcpquic"
)

// cmdMCPCall dials a running secure server over QUIC and either lists the
// exposed MCP tools or invokes one. Mostly useful for smoke-testing a
// deployment without an MCP host application.
func cmdMCPCall(args []string) {
	fs := flag.NewFlagSet("mcp-call", flag.ExitOnError)
	addr := fs.String("addr", "localhost:8430", "server address")
	tool := fs.String("tool", "", "tool to invoke (omit to list tools)")
	toolArgs := fs.String("args", "{}", "tool arguments as JSON")
	insecure := fs.Bool("insecure", false, "skip TLS certificate verification")
	fs.Parse(args)

	logger := newLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := mcpquic.NewClient(*addr, mcpquic.ClientTLSConfig(*insecure))
	if err := client.Connect(ctx); err != nil {
		logger.Error("connect failed", "addr", *addr, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	if *tool == "" {
		tools, err := client.ListTools(ctx)
		if err != nil {
			logger.Error("list tools failed", "error", err)
			os.Exit(1)
		}
		for _, t := range tools.Tools {
			fmt.Printf("%-20s %s\n", t.Name, t.Description)
		}
		return
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(*toolArgs), &parsed); err != nil {
		logger.Error("invalid tool arguments", "error", err)
		os.Exit(1)
	}
	res, err := client.CallTool(ctx, *tool, parsed)
	if err != nil {
		logger.Error("tool call failed", "tool", *tool, "error", err)
		os.Exit(1)
	}
	out, err := json.MarshalIndent(res.Content, "", "    ")
	if err != nil {
		logger.Error("encode result", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
