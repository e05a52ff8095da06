package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/Chiody/openbbox/internal/config"
	"github.com/Chiody/openbbox/internal/logging"
	"github.com/Chiody/openbbox/internal/storage"
	"github.com/Chiody/openbbox/internal/storage/history"
	"github.com/Chiody/openbbox/internal/storage/migrate"
	"github.com/Chiody/openbbox/internal/storage/sqlite"
)

// app holds the resources shared by subcommands.
type app struct {
	cfg     config.Config
	cfgPath string
	dataDir string
	logger  logging.Logger
	logFile *os.File
	db      *sql.DB
	repo    *history.Repository
}

type appOptions struct {
	// logToFile sends logs to <data dir>/openbbox.log instead of stderr.
	logToFile bool
	openStore bool
}

func newApp(flags *globalFlags, opts appOptions) (*app, error) {
	dataDir := flags.dataDir
	if dataDir == "" {
		dir, err := storage.DataDir()
		if err != nil {
			return nil, fmt.Errorf("data dir: %w", err)
		}
		dataDir = dir
	}
	cfgPath := flags.configPath
	if cfgPath == "" {
		cfgPath = config.Path(dataDir)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if flags.dataDir == "" && cfg.DataDir != "" {
		dataDir = cfg.DataDir
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}

	a := &app{cfg: cfg, cfgPath: cfgPath, dataDir: dataDir}
	var sink io.Writer = os.Stderr
	if opts.logToFile {
		f, err := os.OpenFile(storage.LogPath(dataDir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
		sink = f
	}
	a.logger = logging.New(sink, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))

	if opts.openStore {
		db, err := sqlite.Open(storage.DatabasePath(dataDir))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.db = db
		if err := migrate.Up(db); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.repo = history.NewRepository(db)
	}
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
		a.db = nil
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
}
