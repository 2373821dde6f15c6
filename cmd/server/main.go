package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/coursesync/internal/config"
	"github.com/iudanet/coursesync/internal/logging"
	"github.com/iudanet/coursesync/internal/server"
	"github.com/iudanet/coursesync/internal/server/jwt"
	"github.com/iudanet/coursesync/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// secretEnv переменная окружения с ключом подписи токенов
const secretEnv = "COURSESYNC_JWT_SECRET"

type options struct {
	addr       string
	dbPath     string
	secret     string
	logLevel   string
	logFormat  string
	logFile    string
	issueUser  string
	issueDev   string
	tokenTTL   time.Duration
	rateWindow time.Duration
	rateLimit  int
	version    bool
	issue      bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("coursesync-server", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.addr, "addr", ":8080", "Listen address")
	fs.StringVar(&opts.dbPath, "db", "coursesync-server.db", "Path to SQLite database")
	fs.StringVar(&opts.secret, "jwt-secret", os.Getenv(secretEnv), "Token signing secret (env "+secretEnv+")")
	fs.DurationVar(&opts.tokenTTL, "token-ttl", jwt.DefaultTTL, "Lifetime of issued tokens")
	fs.IntVar(&opts.rateLimit, "rate-limit", 120, "Requests per user per rate window")
	fs.DurationVar(&opts.rateWindow, "rate-window", time.Minute, "Rate limit window")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")
	fs.StringVar(&opts.logFile, "log-file", "", "Write logs to a rotated file instead of stderr")
	fs.BoolVar(&opts.version, "version", false, "Show version information")
	fs.BoolVar(&opts.issue, "issue-token", false, "Print an access token for -user and -device and exit")
	fs.StringVar(&opts.issueUser, "user", "", "User id for -issue-token")
	fs.StringVar(&opts.issueDev, "device", "", "Device id for -issue-token")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if opts.version {
		printVersion(stdout)
		return 0
	}

	if opts.secret == "" {
		_, _ = fmt.Fprintf(stderr, "Error: -jwt-secret or %s is required\n", secretEnv)
		return 2
	}
	tokens := jwt.NewService(jwt.Config{Secret: []byte(opts.secret), TTL: opts.tokenTTL})

	if opts.issue {
		token, expiresAt, err := tokens.Issue(opts.issueUser, opts.issueDev)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(stdout, token)
		_, _ = fmt.Fprintf(stderr, "Token expires at %s\n", expiresAt.Format(time.RFC3339))
		return 0
	}

	logger, closer, err := logging.New(config.LogConfig{
		Level:      opts.logLevel,
		Format:     opts.logFormat,
		File:       opts.logFile,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() {
		_ = closer.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, opts.dbPath)
	if err != nil {
		logger.Error("Failed to open storage", "error", err, "db", opts.dbPath)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	srv := server.New(server.Config{
		Addr:       opts.addr,
		Version:    Version,
		RateLimit:  opts.rateLimit,
		RateWindow: opts.rateWindow,
	}, store, tokens, logger)

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server stopped with error", "error", err)
		return 1
	}
	logger.Info("Server stopped")
	return 0
}

func printVersion(w io.Writer) {
	_, _ = fmt.Fprintf(w, "CourseSync Server\n")
	_, _ = fmt.Fprintf(w, "Version:    %s\n", Version)
	_, _ = fmt.Fprintf(w, "Build Date: %s\n", BuildDate)
	_, _ = fmt.Fprintf(w, "Git Commit: %s\n", GitCommit)
}
