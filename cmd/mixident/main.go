package main

import (
	"os"

	"github.com/eternnoir/mixident/cmd/mixident/cmd"
	"github.com/eternnoir/mixident/pkg/logger"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("Application execution failed")
		os.Exit(1)
	}
}
