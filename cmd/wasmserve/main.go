// Command wasmserve serves the WebAssembly build output during development.
//
//	wasmserve            serve bin/Debug/net8.0/wwwroot on :3000
//	wasmserve -r         serve bin/Release/net8.0/wwwroot
//	wasmserve -watch     reload the browser when the build output changes
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Kush-Singh-26/wasmserve/internal/server"
)

func main() {
	os.Exit(Main(os.Args[1:]))
}

// Main runs the server and returns the process exit code.
func Main(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return 1
	}
	fmt.Println("✅ Server stopped.")
	return 0
}
