package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/lefinal/trainhub/app"
	"github.com/lefinal/trainhub/errors"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.json", "path to the config file")
	flag.Parse()
	config, err := app.LoadConfigFromFile(configPath)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, errors.Prettify(err))
		os.Exit(1)
	}
	// Shut down on interrupt.
	ctx, shutdown := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		shutdown()
	}()
	trainhub := app.NewApp(config)
	err = trainhub.Boot(ctx)
	if err != nil {
		// Already logged in Boot.
		os.Exit(1)
	}
}
