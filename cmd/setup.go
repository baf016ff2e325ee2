package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/upsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file when missing and brings the cache schema up to date.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err == nil {
		r.logger.Info("using existing config", "path", configPath)
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		r.logger.Info("config file created", "path", configPath)
	}

	if err := r.Load(configPath); err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	if err := r.cache(); err != nil {
		return err
	}

	count, err := r.snapshots.Count()
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)

	r.writePlain("✓ Config: %s\n", configPath)
	r.writePlain("✓ Cache: %s (%d snapshots)\n", r.config.Database.Path, count)
	r.writePlainln("Next steps:")
	r.writePlain("1. Point server.base_url in %s at your pipeline server\n", configPath)
	r.writePlain("2. Run 'upsync login' and scan the QR code with the Bilibili app\n")
	return nil
}
