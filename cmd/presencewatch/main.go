package main

import (
	"fmt"
	"os"

	"github.com/devfolio/portfolio-backend/internal/tools/presencewatch"
)

func main() {
	if err := presencewatch.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
