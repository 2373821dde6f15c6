package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/iudanet/coursesync/internal/client/iocli"
	"github.com/iudanet/coursesync/internal/config"
	"github.com/iudanet/coursesync/internal/logging"
)

// BuildInfo version information set via ldflags during build
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

// AppOpener собирает App по загруженной конфигурации
type AppOpener func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error)

// Cli состояние одного запуска командной строки
type Cli struct {
	io        iocli.IO
	v         *viper.Viper
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	logOut    io.Writer
	app       *App
	openApp   AppOpener
	now       func() time.Time
	build     BuildInfo
	cfgFile   string
}

// New creates a Cli writing to stdio.
func New(build BuildInfo) *Cli {
	return &Cli{
		io:      iocli.NewStdio(),
		v:       viper.New(),
		logOut:  os.Stderr,
		openApp: OpenApp,
		now:     time.Now,
		build:   build,
	}
}

// Execute runs the command line and returns the process exit code.
func Execute(build BuildInfo) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := New(build)
	err := c.Command().ExecuteContext(ctx)
	// PersistentPostRunE не вызывается, если команда вернула ошибку
	if closeErr := c.close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// load читает конфигурацию и настраивает логирование
func (c *Cli) load() error {
	if c.cfg != nil {
		return nil
	}

	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Log, c.logOut)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	c.cfg = cfg
	c.logger = logger
	c.logCloser = closer
	return nil
}

// application лениво открывает клиент: version и help не трогают базу
func (c *Cli) application(ctx context.Context) (*App, error) {
	if c.app != nil {
		return c.app, nil
	}
	if err := c.load(); err != nil {
		return nil, err
	}

	app, err := c.openApp(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, err
	}
	c.app = app
	return app, nil
}

func (c *Cli) close() error {
	var firstErr error
	if c.app != nil {
		if err := c.app.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close database: %w", err)
		}
		c.app = nil
	}
	if c.logCloser != nil {
		if err := c.logCloser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.logCloser = nil
	}
	return firstErr
}
