// pmtools: task tracking and boss reports over MCP, with Slack delivery.
//
// Usage:
//
//	pmtools serve                    # MCP server on stdio
//	pmtools serve --transport http   # HTTP gateway (/tools/call, /mcp)
//	pmtools report --push            # Print the daily report and post it
//	pmtools version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
