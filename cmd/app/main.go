package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/tramites/internal"
	"github.com/starford/tramites/internal/mcpserver"
	"github.com/starford/tramites/internal/record"
	"github.com/starford/tramites/internal/tramite"
	pkgconfig "github.com/starford/tramites/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// openService loads the configured collections for a one-shot command.
// Logs go to stderr so stdout carries only command output.
func openService(ctx context.Context, cmd *cli.Command) (*tramite.Service, func() error, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)
	svc, closeFn, err := internal.OpenService(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return svc, closeFn, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	svc, closeFn, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()
	return mcpserver.New(svc, time.Now).ServeStdio()
}

func exportBundle(ctx context.Context, cmd *cli.Command) error {
	svc, closeFn, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	b, err := svc.Export(cmd.Args().First())
	if err != nil {
		return err
	}
	out := io.Writer(os.Stdout)
	if path := cmd.String("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return printJSON(out, b)
}

func importBundle(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("usage: import <bundle.json>")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	b, err := tramite.DecodeBundle(data)
	if err != nil {
		return err
	}

	svc, closeFn, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := svc.Import(ctx, b)
	if perr := printJSON(os.Stdout, report); perr != nil {
		return perr
	}
	return err
}

func seed(ctx context.Context, cmd *cli.Command) error {
	svc, closeFn, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	s := uint64(cmd.Int("seed"))
	if s == 0 {
		s = uint64(time.Now().UnixNano())
	}
	report, err := svc.Seed(ctx, int(cmd.Int("tramites")), int(cmd.Int("per")), rand.New(rand.NewPCG(s, s>>1)))
	if perr := printJSON(os.Stdout, report); perr != nil {
		return perr
	}
	return err
}

func status(ctx context.Context, cmd *cli.Command) error {
	at := time.Now()
	if v := cmd.String("at"); v != "" {
		d, err := record.ParseDate(v)
		if err != nil {
			return err
		}
		at = d.Time
	}

	svc, closeFn, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	if id := cmd.Args().First(); id != "" {
		view, err := svc.Status(id, at)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, view)
	}
	window := time.Duration(cmd.Int("days")) * 24 * time.Hour
	return printJSON(os.Stdout, svc.Attention(at, window))
}

func main() {
	cmd := &cli.Command{
		Name:   "tramites",
		Usage:  "Academic procedure records with date-driven lifecycle status",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:      "export",
				Usage:     "Write a trámite (or everything) as a JSON bundle",
				ArgsUsage: "[tramite-id]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file (default stdout)"},
				},
				Action: exportBundle,
			},
			{
				Name:      "import",
				Usage:     "Load a JSON bundle, skipping records that already exist",
				ArgsUsage: "<bundle.json>",
				Action:    importBundle,
			},
			{
				Name:  "seed",
				Usage: "Generate sample trámites",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "tramites", Value: 3, Usage: "Number of trámites"},
					&cli.IntFlag{Name: "per", Value: 2, Usage: "Children per kind and trámite"},
					&cli.IntFlag{Name: "seed", Usage: "Random seed (default: time based)"},
				},
				Action: seed,
			},
			{
				Name:      "status",
				Usage:     "Print a trámite's derived status, or the attention list without an id",
				ArgsUsage: "[tramite-id]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "at", Usage: "Reference date YYYY-MM-DD (default now)"},
					&cli.IntFlag{Name: "days", Value: 7, Usage: "Attention window in days"},
				},
				Action: status,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
