package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"resonate/internal/config"
	"resonate/internal/db"
	"resonate/internal/errors"
	"resonate/internal/logging"
	"resonate/internal/mcp"
	"resonate/internal/media"
	"resonate/internal/pipeline"
	"resonate/internal/reason"
	"resonate/internal/resolve"
	"resonate/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	app := &cli.App{
		Name:    "resonate",
		Usage:   "Evaluate captured posts and draft replies",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Config file path (default: ~/.resonate/config.yaml)"},
		},
		Commands: []*cli.Command{
			serveCmd(),
			mcpCmd(),
			processCmd(),
			initCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// runtime bundles the dependencies shared by the long-running commands.
type runtime struct {
	cfg      *config.Config
	db       *sql.DB
	pipeline *pipeline.Pipeline
	log      *slog.Logger
	mediaDir string
}

func (rt *runtime) close() {
	rt.db.Close()
}

// configPath resolves the config file location from the --config flag
// or the default data directory.
func configPath(c *cli.Context) (string, error) {
	if p := c.String("config"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".resonate", "config.yaml"), nil
}

// buildRuntime loads config, opens the database, and wires the pipeline.
func buildRuntime(c *cli.Context) (*runtime, error) {
	path, err := configPath(c)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	log := logging.New(cfg.Logging.Level)

	database, err := db.Init(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	mediaDir := filepath.Join(cfg.Storage.DataDir, "media")
	store, err := media.NewLocalStore(mediaDir, "/media")
	if err != nil {
		database.Close()
		return nil, err
	}

	pl := &pipeline.Pipeline{
		DB:        database,
		Resolver:  resolve.New(store, log, cfg.Resolver.UserAgent),
		Client:    reason.NewClient(cfg.Reasoning, log),
		Templates: reason.NewCache(&reason.DBTemplates{DB: database}),
		Log:       log,
	}

	return &runtime{cfg: cfg, db: database, pipeline: pl, log: log, mediaDir: mediaDir}, nil
}

// serveCmd creates the serve command.
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Usage: "Bind address (overrides config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			rt, err := buildRuntime(c)
			if err != nil {
				return err
			}
			defer rt.close()

			bind := rt.cfg.Server.Bind
			if v := c.String("bind"); v != "" {
				bind = v
			}
			port := rt.cfg.Server.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}

			if rt.cfg.Reasoning.APIKey == "" {
				rt.log.Warn("no reasoning API key configured, pipeline runs will fail")
			}

			srv := web.NewServer(rt.pipeline, rt.mediaDir, bind, port, rt.log)
			return web.Run(srv, rt.log)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio",
		Action: func(c *cli.Context) error {
			rt, err := buildRuntime(c)
			if err != nil {
				return err
			}
			defer rt.close()

			return mcp.Run(rt.pipeline, Version)
		},
	}
}

// processCmd creates the process command.
func processCmd() *cli.Command {
	return &cli.Command{
		Name:  "process",
		Usage: "Run the pipeline once for a post (reads submission JSON from stdin)",
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("submission JSON must be piped via stdin"))
			}
			raw, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			var req pipeline.SubmitRequest
			if err := json.Unmarshal([]byte(raw), &req); err != nil {
				return outputError(errors.NewInvalidRequest("invalid submission JSON: " + err.Error()))
			}

			rt, err := buildRuntime(c)
			if err != nil {
				return err
			}
			defer rt.close()

			p, err := rt.pipeline.Ingest(&req)
			if err != nil {
				return outputError(err)
			}

			status, err := rt.pipeline.Run(context.Background(), p)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(status)
		},
	}
}

// initCmd creates the init command.
func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a default config file",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Overwrite an existing config file"},
		},
		Action: func(c *cli.Context) error {
			path, err := configPath(c)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			if _, err := os.Stat(path); err == nil && !c.Bool("force") {
				return outputError(errors.NewInvalidRequest("config already exists at " + path + " (use --force to overwrite)"))
			}

			if err := config.Default().Save(path); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return outputJSON(map[string]any{"config": path, "created": true})
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if pErr, ok := err.(*errors.PipelineError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", pErr.Code, pErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
