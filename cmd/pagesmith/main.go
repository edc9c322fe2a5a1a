// CLAUDE:SUMMARY CLI entry point for pagesmith — merge, split and plan PDFs from the shell, or serve them over HTTP and MCP.
// Command pagesmith merges and splits PDF documents by page ranges or by a
// per-file size target.
//
// Usage:
//
//	pagesmith merge -o out.pdf a.pdf@1-3,7 b.pdf      # merge page selections
//	pagesmith split -ranges "1-5, 6-10" -o parts report.pdf
//	pagesmith split -size 2.0 -zip report.pdf         # size-budget split as zip
//	pagesmith plan -size 2.0 report.pdf               # print the size plan
//	pagesmith inspect report.pdf
//	pagesmith serve -config pagesmith.yaml [-mcp]     # HTTP API (+ MCP on stdio)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "serve":
		err = cmdServe(ctx, os.Args[2:])
	case "merge":
		err = cmdMerge(ctx, os.Args[2:])
	case "split":
		err = cmdSplit(ctx, os.Args[2:])
	case "plan":
		err = cmdPlan(ctx, os.Args[2:])
	case "inspect":
		err = cmdInspect(ctx, os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		slog.Error("pagesmith: "+os.Args[1], "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `pagesmith — merge and split PDF documents

usage:
  pagesmith merge   [-o out.pdf] <file[@ranges]>...
  pagesmith split   (-ranges <expr> | -size <mb>) [-o dir] [-zip] <file>
  pagesmith plan    [-size <mb>] <file>
  pagesmith inspect <file>...
  pagesmith serve   [-config pagesmith.yaml] [-addr :8090] [-mcp]

Ranges are 1-based and comma-separated: "1, 3-5, 9". An empty expression
or "all" selects every page. Invalid tokens are ignored with a warning.
`)
}

// newLogger builds the JSON logger on stderr; stdout stays free for command
// output and the MCP stdio transport.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
