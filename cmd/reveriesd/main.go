// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/reveries-sh/reveries/internal/config"
	"github.com/reveries-sh/reveries/internal/daemon"
	"github.com/reveries-sh/reveries/pkg/logger"
)

// Version is set at build time via ldflags
var Version string

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ~/.reveries/config.json)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	jsonLog := flag.Bool("json-log", false, "Write logs as JSON")
	version := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "reveriesd: persistent memory and inner-monologue daemon\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  CEREBRAS_API_KEY   Chat model API key (default chat provider)\n")
		fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY     Embedding API key (default embedding provider)\n")
		fmt.Fprintf(os.Stderr, "  VOYAGE_API_KEY     Embedding API key (voyage provider)\n")
		fmt.Fprintf(os.Stderr, "  REVERIES_DB_TYPE   Database type (sqlite or postgres)\n")
		fmt.Fprintf(os.Stderr, "  REVERIES_DB_PATH   SQLite database path\n")
		fmt.Fprintf(os.Stderr, "  REVERIES_DB_DSN    PostgreSQL connection string\n")
		fmt.Fprintf(os.Stderr, "  REVERIES_SOCKET    Socket path override\n")
	}

	flag.Parse()

	if *version {
		v := Version
		if v == "" {
			v = "dev"
		}
		fmt.Println("reveriesd", v)
		return
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromPath(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "reveriesd: %v\n", err)
		os.Exit(1)
	}

	logOpts := []logger.Option{
		logger.WithDebug(*debug),
		logger.WithPretty(!*jsonLog),
		logger.WithJSON(*jsonLog),
	}
	if cfg.LogPath != "" {
		if f, ferr := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); ferr == nil {
			defer f.Close()
			logOpts = append(logOpts, logger.WithWriters(os.Stderr, f))
		}
	}
	log := logger.New(logOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := daemon.New(cfg, log)
	if err := d.Run(ctx); err != nil {
		log.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}
