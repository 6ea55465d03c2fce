package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/go-while/go-pugbin/internal/config"
	"github.com/go-while/go-pugbin/internal/database"
	"github.com/go-while/go-pugbin/internal/nntp"
	"github.com/go-while/go-pugbin/internal/parts"
	"github.com/go-while/go-pugbin/internal/processor"
)

// loadConfig reads the config file and applies command line overrides.
func loadConfig() (*config.MainConfig, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, scanLimit, parallel)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.MainConfig, limit int64, par int) {
	if limit > 0 {
		cfg.Scan.MessageScanLimit = limit
	}
	if par > 0 {
		cfg.Scan.Parallel = par
	}
}

// openDatabase opens the store and brings its schema up to date.
func openDatabase(ctx context.Context, cfg *config.MainConfig) (*database.Database, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// scanner bundles everything a sync command needs.
type scanner struct {
	db        *database.Database
	pool      *nntp.Pool
	assembler *parts.Assembler
	proc      *processor.Processor
}

func newScanner(ctx context.Context, cfg *config.MainConfig) (*scanner, error) {
	provider, err := cfg.PrimaryProvider()
	if err != nil {
		return nil, err
	}
	if passwordPrompt {
		pw, err := readPassword(fmt.Sprintf("Password for %s@%s: ", provider.Username, provider.Host))
		if err != nil {
			return nil, err
		}
		cfg.SetProviderPassword(provider.Name, pw)
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pool := nntp.NewPool(nntp.NewBackendConfig(provider))
	pool.StartCleanupWorker(ctx, 0)
	assembler := parts.NewAssembler(db, nil)
	log.Printf("[PUGBIN] provider %s (%s:%d, %d conns), scan limit %d, parallel %d",
		provider.Name, provider.Host, provider.Port, provider.MaxConns, cfg.Scan.MessageScanLimit, cfg.Scan.Parallel)
	return &scanner{
		db:        db,
		pool:      pool,
		assembler: assembler,
		proc:      processor.NewProcessor(db, nntp.NewTransport(pool), assembler, cfg.Scan),
	}, nil
}

func (s *scanner) Close() {
	if err := s.pool.ClosePool(); err != nil {
		log.Printf("[PUGBIN] close pool: %v", err)
	}
	if err := s.db.Close(); err != nil {
		log.Printf("[PUGBIN] close database: %v", err)
	}
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
