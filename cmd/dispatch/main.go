package main

import (
	"fmt"
	"os"

	"dispatch-backend/internal/env"
)

func main() {
	if _, err := env.Load(".env", ".env.local"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
