package database

import (
	"context"
	"embed"
	"fmt"
	"log"
	"os"
	"path"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

func (d *Database) migrationDir() string {
	return path.Join("migrations", d.driver)
}

func (d *Database) setupGoose() error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(d.driver); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return nil
}

// Migrate applies all pending schema migrations.
func (d *Database) Migrate(ctx context.Context) error {
	return d.MigrateCommand(ctx, "up")
}

// MigrateCommand runs one goose command (up, up-one, down, status, version,
// reset) against the embedded migrations for the current driver.
func (d *Database) MigrateCommand(ctx context.Context, cmd string) error {
	if err := d.setupGoose(); err != nil {
		return err
	}
	dir := d.migrationDir()
	var err error
	switch cmd {
	case "up":
		err = goose.UpContext(ctx, d.db, dir)
	case "up-one":
		err = goose.UpByOneContext(ctx, d.db, dir)
	case "down":
		err = goose.DownContext(ctx, d.db, dir)
	case "status":
		goose.SetLogger(log.New(os.Stdout, "", 0))
		err = goose.StatusContext(ctx, d.db, dir)
	case "version":
		goose.SetLogger(log.New(os.Stdout, "", 0))
		err = goose.VersionContext(ctx, d.db, dir)
	case "reset":
		err = goose.ResetContext(ctx, d.db, dir)
	default:
		return fmt.Errorf("unknown migrate command: %s", cmd)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", cmd, err)
	}
	return nil
}
