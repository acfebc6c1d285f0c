package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/aukc1970/formwork/internal"
	pkgconfig "github.com/aukc1970/formwork/pkg/config"
)

var version = "dev"

func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func check(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	conflicts, err := internal.Check(ctx, append(opts, internal.WithLogOutput(os.Stderr))...)
	if err != nil {
		return err
	}
	for _, c := range conflicts {
		fmt.Fprintln(cmd.Root().Writer, c.String())
	}
	if len(conflicts) > 0 {
		return cli.Exit(fmt.Sprintf("%d route conflicts", len(conflicts)), 2)
	}
	fmt.Fprintln(cmd.Root().Writer, "content tree ok")
	return nil
}

func clearCache(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.ClearCache(ctx, append(opts, internal.WithLogOutput(os.Stderr))...)
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "formwork",
		Usage:   "Flat-file content engine serving Markdown page directories over HTTP",
		Version: version,
		Action:  serve,
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
				Usage:  "Serve the site (default)",
				Action: serve,
			},
			{
				Name:   "check",
				Usage:  "Report ordering-prefix route conflicts in the content tree",
				Action: check,
			},
			{
				Name:  "cache",
				Usage: "Response cache maintenance",
				Commands: []*cli.Command{
					{
						Name:   "clear",
						Usage:  "Drop every cached response",
						Action: clearCache,
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Run the MCP server on stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
