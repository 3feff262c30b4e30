// guardchat is a terminal chat client for a local LiteLLM gateway with
// Lakera guardrails.
//
// Usage:
//
//	# Interactive chat, starting the gateway when needed
//	guardchat chat
//
//	# One-shot message with a system prompt
//	guardchat chat "Summarize RFC 9110" -s "Be brief."
//
//	# Manage the gateway process
//	guardchat proxy start --config config.yaml
//	guardchat proxy status
//	guardchat proxy restart
//	guardchat proxy stop
//
//	# Keep the gateway running and restart it when config.yaml changes
//	guardchat proxy watch --interval 30s --metrics-addr :9090
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
