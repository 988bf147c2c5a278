// Command companionctl drives the companion backend from a terminal:
// one-off chat turns, scripted questionnaires, resource search and
// therapist lookup, all against the configured collaborators.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
