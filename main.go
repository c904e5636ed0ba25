package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spigell/cv-screener/cmd"
)

func main() {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
