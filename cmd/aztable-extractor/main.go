package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
	"github.com/ajitpratap0/aztable-extractor/pkg/logger"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	err := newRootCmd(os.Stdout).Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps an error to the process exit status: 1 for user errors,
// 2 for application errors.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.IsUser(err):
		return 1
	default:
		return 2
	}
}
