// fstokend is the privileged broker: it owns the catalog and the shared
// signing identity, and serves one worker goroutine per accepted
// connection until signaled to stop.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fstokend/internal/broker"
	"fstokend/internal/catalog"
	"fstokend/internal/config"
	"fstokend/internal/identity"
	"fstokend/internal/log"
	"fstokend/internal/operation"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(true)
	if err != nil {
		return err
	}

	log.SetLogger(log.NewSimpleLogger(os.Stderr, parseLevel(cfg.LogLevel)))

	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return err
	}
	ident := identity.New(cfg.IdentityDir)

	b := broker.New(cfg, &operation.Deps{Catalog: cat, Identity: ident})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		b.Shutdown()
	}()

	return b.ListenAndServe()
}

func parseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.LevelDebug
	case "info":
		return log.LevelInfo
	case "error":
		return log.LevelError
	default:
		return log.LevelWarn
	}
}
