package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"syclopsui/internal/app"
	"syclopsui/internal/catalog"
	"syclopsui/internal/compiler"
	"syclopsui/internal/config"
	"syclopsui/internal/ctxlog"
	"syclopsui/internal/dispatch"
	"syclopsui/internal/document"
	"syclopsui/internal/server"
	syclopsuisdk "syclopsui/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "syclops-ui",
	Short: "Syclops job configuration UI",
	Long: `syclops-ui turns configuration form fields into Syclops job descriptions and starts the pipeline.
- Compile: form fields become a job description YAML (steps, seeds, render settings, frames, scene plugins, camera).
- Generate: the job description is written to a temp file and the pipeline is started in the background.
- Debug modes: scene, blender-code and pipeline-code start the pipeline with --debug.
- Assets: model assets are read from the asset catalog file.
- Jobs: started jobs are kept in memory while the server runs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SYCLOPS_UI")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "directory holding "+config.FileName)
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (overrides the workspace file)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	for _, name := range []string{"workspace", "config", "json", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(compileCmd())
	rootCmd.AddCommand(assetsCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			ctx := ctxlog.WithLogger(cmd.Context(), logger)
			rt, err := app.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			handler, err := server.New(server.Config{Engine: rt.Engine, BasePath: cfg.Server.BasePath, Logger: logger})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-ctx.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving syclops config UI API",
				"url", fmt.Sprintf("http://%s%s", cfg.Server.Addr, cfg.Server.BasePath),
				"executable", cfg.Pipeline.Executable,
				"catalog", cfg.Catalog.Path)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().String("base-path", "", "API base path")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.base_path", cmd.Flags().Lookup("base-path"))
	return cmd
}

func compileCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "compile [fields.json]",
		Short: "Compile form fields into a job description",
		Long:  "Reads a JSON object of form fields (from a file, or stdin when omitted or -) and prints the job description YAML.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			doc, err := compiler.CompileBody(data, "application/json")
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(doc)
			}
			yml, err := document.Marshal(doc)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(yml)
				return err
			}
			return os.WriteFile(out, yml, 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the YAML to this file")
	return cmd
}

func assetsCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "List assets from the asset catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reader, err := catalog.NewReader(cfg.Catalog.CacheSize)
			if err != nil {
				return err
			}
			assets, err := reader.ListAssetsOfKind(cfg.Catalog.Path, kind)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(assets)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"ID", "Library", "Type", "Tags", "Height"})
			for _, a := range assets {
				tw.AppendRow(table.Row{a.ID, a.Library, a.Type, strings.Join(a.Tags, ", "), a.Height})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", catalog.KindModel, "asset type to list")
	return cmd
}

func generateCmd() *cobra.Command {
	var debug, serverURL string
	cmd := &cobra.Command{
		Use:   "generate [fields.json]",
		Short: "Compile form fields and start the pipeline",
		Long:  "Compiles the form fields and starts the Syclops pipeline in the background. With --server the request goes to a running syclops-ui server, so the job shows up in its job list.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			raw, err := compiler.DecodeRaw(data, "application/json")
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("debug") {
				if _, ok := dispatch.ParseMode(debug); !ok {
					return fmt.Errorf("unknown debug mode %q", debug)
				}
				raw["debug_mode"] = debug
			}
			if serverURL != "" {
				out, err := syclopsuisdk.New(serverURL).Generate(cmd.Context(), syclopsuisdk.Fields(raw))
				if err != nil {
					return err
				}
				return printOutcome(out.Success, out, out.Error)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := ctxlog.WithLogger(cmd.Context(), newLogger(cfg))
			rt, err := app.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			out, err := rt.Engine.Generate(ctx, raw)
			if err != nil {
				return err
			}
			return printOutcome(out.Success, out, out.Error)
		},
	}
	cmd.Flags().StringVar(&debug, "debug", string(dispatch.ModeNone), "debug mode (none, scene, blender-code, pipeline-code)")
	cmd.Flags().StringVar(&serverURL, "server", "", "syclops-ui server URL")
	return cmd
}

func jobsCmd() *cobra.Command {
	var serverURL string
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs started by a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(serverURL)
			if err != nil {
				return err
			}
			jobs, err := client.Jobs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(jobs)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"ID", "Status", "PID", "Debug", "Created", "Config File"})
			for _, j := range jobs {
				tw.AppendRow(table.Row{j.ID, j.Status, j.ProcessID, j.DebugMode, j.CreatedAt, j.ConfigFile})
			}
			tw.Render()
			return nil
		},
	}
	show := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job and its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(serverURL)
			if err != nil {
				return err
			}
			detail, err := client.Job(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(detail)
		},
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "syclops-ui server URL (defaults to the configured address)")
	cmd.Flags().IntVar(&limit, "limit", 20, "max jobs to list")
	cmd.AddCommand(show)
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage " + config.FileName,
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	}
	cfg.AddCommand(initCmd, showCmd)
	return cfg
}

// loadConfig reads the config file, falling back to defaults, and applies
// SYCLOPS_UI_* environment and flag overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.LoadOptional(viper.GetString("workspace"))
	}
	if err != nil {
		return nil, err
	}
	overrides := map[string]*string{
		"server.addr":             &cfg.Server.Addr,
		"server.base_path":        &cfg.Server.BasePath,
		"pipeline.executable":     &cfg.Pipeline.Executable,
		"pipeline.install_folder": &cfg.Pipeline.InstallFolder,
		"pipeline.work_dir":       &cfg.Pipeline.WorkDir,
		"catalog.path":            &cfg.Catalog.Path,
		"jobs.temp_dir":           &cfg.Jobs.TempDir,
		"log-level":               &cfg.Log.Level,
		"log-format":              &cfg.Log.Format,
	}
	for key, dst := range overrides {
		if v := viper.GetString(key); v != "" {
			*dst = v
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	logger := ctxlog.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)
	return logger
}

func newClient(serverURL string) (*syclopsuisdk.Client, error) {
	if serverURL == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		serverURL = "http://" + cfg.Server.Addr + cfg.Server.BasePath
	}
	return syclopsuisdk.New(serverURL), nil
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

func printOutcome(success bool, v any, errMsg string) error {
	if err := printJSON(v); err != nil {
		return err
	}
	if !success {
		return fmt.Errorf("failed to start Syclops generation: %s", errMsg)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
