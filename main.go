package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/arin/llmchat/cmd"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// A missing .env is fine; keys can come from the shell or config file.
	_ = godotenv.Load()

	cmd.SetVersion(version)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
