// migrate upgrades the JSON data file to the current schema in place. The
// server does the same on startup; this runs it without serving traffic.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"layoutaria/internal/config"
	"layoutaria/internal/logging"
	"layoutaria/internal/store"
)

func main() {
	path := flag.String("data", "", "Data file to upgrade (default DATA_FILE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)
	if *path == "" {
		*path = cfg.DataFile
	}

	doc, err := store.NewPersistence(*path, logger).Load(time.Now().UTC())
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	logger.Info("migrate: data file is current",
		"path", *path,
		"schema_version", doc.Meta.SchemaVersion,
		"users", len(doc.Users),
		"layouts", len(doc.Layouts),
	)
}
