package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/roach88/quiver/internal/cli"
)

func main() {
	// Optional .env for QUIVER_* overrides; absence is not an error.
	_ = godotenv.Load()

	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
