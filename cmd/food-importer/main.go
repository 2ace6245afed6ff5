package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	entrypoint "github.com/louisbranch/eatbot/internal/platform/cmd"
	"github.com/louisbranch/eatbot/internal/platform/config"
	"github.com/louisbranch/eatbot/internal/tools/foodimport"
)

func main() {
	cfg, err := foodimport.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceFoodImporter, func(ctx context.Context) error {
		return foodimport.Run(ctx, cfg, os.Stdout)
	})
	if err != nil {
		config.Exitf("Error: %v", err)
	}
}
