// CLAUDE:SUMMARY Entry point for twbmap — cobra CLI plus MCP stdio server and optional HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/twbmap/dbopen"
	"github.com/hazyhaar/twbmap/dimap"
	"github.com/hazyhaar/twbmap/idgen"
	"github.com/hazyhaar/twbmap/runlog"
	"github.com/hazyhaar/twbmap/shield"
)

var (
	configPath string
	logLevel   string
	runDBPath  string

	strict            bool
	skipHeader        bool
	excludeCalculated bool
	reorderNames      bool
	section           string
	httpAddr          string
	runsLimit         int
)

func main() {
	root := &cobra.Command{
		Use:           "twbmap",
		Short:         "Rename dimension fields inside Tableau workbooks",
		Long:          "twbmap validates rename mapping CSVs against Tableau .twb workbooks and applies referentially-safe dimension renames across catalogs, formulas, and worksheets.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&runDBPath, "run-db", "", "SQLite run-log database (disabled when empty)")

	root.AddCommand(
		serveCmd(),
		validateMappingCmd(),
		validateWorkbookCmd(),
		analyzeCmd(),
		suggestCmd(),
		remapCmd(),
		extractTOMLCmd(),
		runsCmd(),
	)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger() *slog.Logger {
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func loadConfig() (*dimap.Config, error) {
	cfg := &dimap.Config{}
	if configPath != "" {
		loaded, err := dimap.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	// Flags override the file.
	if strict {
		cfg.Strict = true
	}
	if skipHeader {
		cfg.SkipHeader = true
	}
	if excludeCalculated {
		cfg.ExcludeCalculated = true
	}
	if reorderNames {
		cfg.ReorderNameFields = true
	}
	return cfg, nil
}

// buildService wires the service and, when --run-db is set, the SQLite run
// log. The store is returned too so serve can expose it over HTTP from the
// same handle; the closer flushes pending run entries.
func buildService(logger *slog.Logger) (*dimap.Service, *runlog.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	cfg.Logger = logger

	var opts []dimap.Option
	closer := func() {}
	var store *runlog.Store
	if runDBPath != "" {
		db, err := dbopen.Open(runDBPath, dbopen.WithMkdirAll())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open run db: %w", err)
		}
		store = runlog.NewStore(db, runlog.WithIDGenerator(idgen.UUIDv7()))
		if err := store.Init(); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("init run db: %w", err)
		}
		opts = append(opts, dimap.WithRunLog(store))
		closer = func() {
			store.Close()
			db.Close()
		}
	}
	return dimap.New(cfg, opts...), store, closer, nil
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&skipHeader, "skip-header", false, "Skip the first row of the mapping CSV")
	cmd.Flags().BoolVar(&excludeCalculated, "exclude-calculated", false, "Exclude calculated fields from rename candidates")
	cmd.Flags().BoolVar(&reorderNames, "reorder-name-fields", false, "Suggest the 'name <X>' convention for '<X> name' fields")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP stdio server, optionally with an HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			svc, store, closeSvc, err := buildService(logger)
			if err != nil {
				return err
			}
			defer closeSvc()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if httpAddr != "" {
				r := chi.NewRouter()
				for _, mw := range shield.DefaultStack() {
					r.Use(mw)
				}
				r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
					w.Header().Set("Content-Type", "application/json")
					w.Write([]byte(`{"status":"ok"}`))
				})
				r.Get("/api/runs", runlog.RecentHandler(store))
				svc.RegisterHTTP(r)

				httpSrv := &http.Server{Addr: httpAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					logger.Info("http api listening", "addr", httpAddr)
					if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("http server", "error", err)
					}
				}()
				defer func() {
					shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutCancel()
					httpSrv.Shutdown(shutCtx)
				}()
			}

			mcpSrv := mcp.NewServer(&mcp.Implementation{
				Name:    "twbmap",
				Version: "1.0.0",
			}, nil)
			svc.RegisterMCP(mcpSrv)

			logger.Info("mcp server on stdio")
			return mcpSrv.Run(ctx, &mcp.StdioTransport{})
		},
	}
	addEngineFlags(cmd)
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail remaps whose originals match no workbook field")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "Also serve the HTTP API on this address (e.g. :8086)")
	return cmd
}

func validateMappingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-mapping [mapping.csv]",
		Short: "Validate a rename mapping CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			svc, _, closeSvc, err := buildService(logger)
			if err != nil {
				return err
			}
			defer closeSvc()

			res, err := svc.ValidateMappingFile(cmd.Context(), args[0])
			printJSON(res)
			return err
		},
	}
	addEngineFlags(cmd)
	return cmd
}

func validateWorkbookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-workbook [workbook.twb]",
		Short: "Validate a Tableau workbook's structure and references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			svc, _, closeSvc, err := buildService(logger)
			if err != nil {
				return err
			}
			defer closeSvc()

			res, err := svc.ValidateWorkbook(cmd.Context(), args[0])
			printJSON(res)
			return err
		},
	}
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [workbook.twb]",
		Short: "Report a workbook's field catalog and rename-eligible dimensions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			svc, _, closeSvc, err := buildService(logger)
			if err != nil {
				return err
			}
			defer closeSvc()

			res, err := svc.AnalyzeWorkbook(cmd.Context(), args[0])
			printJSON(res)
			return err
		},
	}
	addEngineFlags(cmd)
	return cmd
}

func suggestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest [workbook.twb] [out.csv]",
		Short: "Write normalized rename suggestions for a workbook's dimensions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			svc, _, closeSvc, err := buildService(logger)
			if err != nil {
				return err
			}
			defer closeSvc()

			res, err := svc.SuggestMappings(cmd.Context(), args[0], args[1])
			printJSON(res)
			return err
		},
	}
	addEngineFlags(cmd)
	return cmd
}

func remapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remap [mapping.csv] [workbook.twb] [out.twb]",
		Short: "Apply a mapping CSV to a workbook and write the result",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			svc, _, closeSvc, err := buildService(logger)
			if err != nil {
				return err
			}
			defer closeSvc()

			res, err := svc.RemapDimensions(cmd.Context(), args[0], args[1], args[2])
			printJSON(res)
			return err
		},
	}
	addEngineFlags(cmd)
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail if a mapping original matches no workbook field")
	return cmd
}

func extractTOMLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract-toml [config.toml] [out.csv]",
		Short: "Mine rename pairs from a TOML config file into a mapping CSV",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			svc, _, closeSvc, err := buildService(logger)
			if err != nil {
				return err
			}
			defer closeSvc()

			res, err := svc.ExtractTOMLMappings(cmd.Context(), args[0], args[1], section)
			printJSON(res)
			return err
		},
	}
	cmd.Flags().StringVar(&section, "section", "", "Dotted TOML table path holding the renames (auto-detected when empty)")
	return cmd
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent tool invocations from the run log",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogger()
			if runDBPath == "" {
				return errors.New("--run-db is required")
			}
			db, err := dbopen.Open(runDBPath, dbopen.WithoutPing())
			if err != nil {
				return err
			}
			defer db.Close()
			store := runlog.NewStore(db)
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), runsLimit)
			if err != nil {
				return err
			}
			printJSON(entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&runsLimit, "limit", 50, "Max entries to show")
	return cmd
}

func printJSON(v any) {
	if v == nil {
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(data))
}
