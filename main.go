package main

import (
	"context"
	"errors"
	"os"

	"github.com/cacstrap/cacstrap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
