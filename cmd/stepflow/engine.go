package main

import (
	"github.com/aretw0/stepflow/internal/cli"
)

// openRuntime builds the engine for the resolved settings.
func openRuntime(opts cli.EngineOptions) (*cli.Runtime, error) {
	return cli.CreateEngine(settings, logger, opts)
}
