package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"klinika/internal/config"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

type flags struct {
	configPath string
	port       string
	dbURL      string
	logLevel   string
	logFormat  string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "klinika",
		Short:         "Headless CMS для сайта стоматологической клиники",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "klinika.yaml", "Config file (JSON or YAML)")
	pf.StringVar(&f.port, "port", "", "HTTP port or host:port")
	pf.StringVar(&f.dbURL, "db", "", "Postgres URL (empty = in-memory)")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&f.logFormat, "log-format", "", "Log format (text, json)")

	cmd.AddCommand(serveCmd(&f), migrateCmd(&f), seedCmd(&f), versionCmd())
	return cmd
}

// loadConfig: файл и окружение, поверх них явно заданные флаги.
func loadConfig(cmd *cobra.Command, f *flags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	fs := cmd.Flags()
	if fs.Changed("port") {
		cfg.Port = f.port
	}
	if fs.Changed("db") {
		cfg.DBURL = f.dbURL
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	return cfg, cfg.Validate()
}

func serveCmd(f *flags) *cobra.Command {
	var withSeed bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()
			if withSeed {
				if err := a.Seed(ctx); err != nil {
					return err
				}
			}
			return a.Serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&withSeed, "seed", false, "Load seed files before serving")
	return cmd
}

func migrateCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply system and content-type DDL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			if cfg.DBURL == "" {
				return fmt.Errorf("migrate needs a database url (--db or KLINIKA_DB_URL)")
			}
			cfg.AutoMigrate = true
			a, err := newApp(cmd.Context(), cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			a.Close()
			a.log.Info("migrations applied")
			return nil
		},
	}
}

func seedCmd(f *flags) *cobra.Command {
	var dir, languages string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load content types and languages from seed files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			if dir != "" {
				cfg.SeedDir = dir
			}
			if languages != "" {
				cfg.LanguagesFile = languages
			}
			a, err := newApp(cmd.Context(), cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Seed(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory with *.dsl files")
	cmd.Flags().StringVar(&languages, "languages", "", "Languages catalog (YAML)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "klinika version %s (build: %s)\n", Version, BuildTime)
		},
	}
}
