// seed creates the admin user and the demo public layout in the data file.
// Running it against a seeded document changes nothing.
package main

import (
	"context"
	"fmt"
	"os"

	"layoutaria/internal/config"
	"layoutaria/internal/logging"
	"layoutaria/internal/security"
	"layoutaria/internal/seed"
	"layoutaria/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)

	st, err := store.Open(cfg.DataFile, store.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(os.Stderr, "store:", err)
		os.Exit(1)
	}
	defer st.Close()

	res, err := seed.New(st, security.NewHasher(cfg.BcryptCost), nil, logger).Run(context.Background(), seed.Options{
		AdminEmail:    cfg.SeedAdminEmail,
		AdminPassword: cfg.SeedAdminPassword,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		st.Close()
		os.Exit(1)
	}
	if res.AdminID == "" && res.DemoLayoutID == "" {
		logger.Info("seed: nothing to do", "path", cfg.DataFile)
	}
}
