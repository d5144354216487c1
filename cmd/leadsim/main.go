package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/leadsim/internal/catalog"
	"github.com/pavelanni/leadsim/internal/fallback"
	appI18n "github.com/pavelanni/leadsim/internal/i18n"
	"github.com/pavelanni/leadsim/internal/llm"
	"github.com/pavelanni/leadsim/internal/llm/prompts"
	"github.com/pavelanni/leadsim/internal/metrics"
	"github.com/pavelanni/leadsim/internal/session"
	"github.com/pavelanni/leadsim/internal/simulation"
	"github.com/pavelanni/leadsim/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "leadsim",
		Short: "Leadership communication training simulation with LLM feedback",
	}

	run := runCmd()
	root.AddCommand(run, evaluateCmd(), exportCmd(), importCmd(), resetCmd(), checkCmd())

	// Make "run" the default when no subcommand is given.
	root.RunE = run.RunE
	root.Flags().AddFlagSet(run.Flags())

	return root
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start or resume the interactive simulation",
		RunE:  runSimulation,
	}
	addLLMFlags(cmd)
	addStoreFlags(cmd)
	addCommonFlags(cmd)
	cmd.Flags().String("name", "", "Participant name (asked for when empty)")
	return cmd
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one response against a scenario and print the result as JSON",
		RunE:  runEvaluate,
	}
	addLLMFlags(cmd)
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.Int("scenario", 1, "Scenario id")
	f.StringP("file", "f", "-", "Response file (- for stdin)")
	f.String("name", "", "Participant name to address in the feedback")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export saved progress as JSON",
		RunE:  runExport,
	}
	addStoreFlags(cmd)
	addCommonFlags(cmd)
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Replace saved progress with an exported JSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	addStoreFlags(cmd)
	addCommonFlags(cmd)
	return cmd
}

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete saved progress",
		RunE:  runReset,
	}
	addStoreFlags(cmd)
	addCommonFlags(cmd)
	return cmd
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the LLM endpoint answers",
		RunE:  runCheck,
	}
	addLLMFlags(cmd)
	addCommonFlags(cmd)
	return cmd
}

func addLLMFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-url", "https://api.groq.com/openai/v1", "OpenAI-compatible API base URL")
	f.StringSlice("llm-key", nil, "API key for LLM (repeatable, keys are used in rotation)")
	f.String("llm-model", "llama-3.3-70b-versatile", "LLM model name")
	f.Float32("temperature", 0.7, "Sampling temperature")
	f.Int("max-tokens", 1000, "Maximum tokens in a reply")
	f.Int("max-attempts", llm.DefaultMaxAttempts, "Attempts per request before falling back to offline feedback")
	f.Duration("llm-timeout", 60*time.Second, "Timeout for a single LLM request")
	f.Bool("scoring", true, "Attach 1-5 scores to feedback")
	f.String("prompt-variant", string(prompts.PromptStandard), "Evaluation prompt variant (strict, standard, lenient)")
}

func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("store", "sqlite", "Progress store (sqlite, redis, memory)")
	f.String("db", "leadsim.db", "SQLite database path")
	f.String("redis-url", "redis://localhost:6379/0", "Redis URL")
	f.Int("quota-bytes", store.DefaultQuotaBytes, "Largest saved snapshot in bytes (0 = unlimited)")
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("scenarios", "", "Scenario YAML file (built-in scenarios when empty)")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	f.String("metrics-file", "", "Write Prometheus metrics to this file on exit")
	f.String("log-level", "warn", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelWarn
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("LEADSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("leadsim")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/leadsim")
	v.AddConfigPath("/etc/leadsim")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// setup prepares logging, configuration and translations for a command and
// returns a context carrying the UI language.
func setup(cmd *cobra.Command) (context.Context, *viper.Viper, error) {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return nil, nil, fmt.Errorf("init i18n: %w", err)
	}
	slog.Debug("translations loaded", "lang", lang, "available", appI18n.Languages())
	return appI18n.WithLanguage(cmd.Context(), lang), v, nil
}

type progressStore interface {
	session.KeyValueStore
	Close() error
}

func openStore(ctx context.Context, v *viper.Viper) (progressStore, error) {
	quota := v.GetInt("quota-bytes")
	switch kind := strings.ToLower(v.GetString("store")); kind {
	case "sqlite", "":
		s, err := store.New(v.GetString("db"), quota)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return s, nil
	case "redis":
		s, err := store.NewRedis(ctx, v.GetString("redis-url"), quota)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return s, nil
	case "memory":
		slog.Warn("using in-memory store, progress will not survive this process")
		return store.NewMemory(quota), nil
	default:
		return nil, fmt.Errorf("unknown store %q (want sqlite, redis or memory)", kind)
	}
}

func newClient(v *viper.Viper, m *metrics.Recorder) (*llm.Client, error) {
	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.PromptStandard)
	}

	keys := v.GetStringSlice("llm-key")
	if len(keys) == 0 {
		slog.Warn("no LLM API key configured, requests may be rejected")
	}
	completer := llm.NewOpenAI(llm.OpenAIConfig{
		BaseURL:     v.GetString("llm-url"),
		Keys:        keys,
		Model:       v.GetString("llm-model"),
		Temperature: float32(v.GetFloat64("temperature")),
		MaxTokens:   v.GetInt("max-tokens"),
		Timeout:     v.GetDuration("llm-timeout"),
	})

	retry := llm.DefaultRetryPolicy()
	retry.MaxAttempts = v.GetInt("max-attempts")
	return llm.New(completer, llm.Config{
		PromptVariant: prompts.PromptVariant(promptVariant),
		Scoring:       v.GetBool("scoring"),
		Retry:         retry,
		Metrics:       m,
	})
}

// newEngine builds an engine. client may be nil for commands that never
// evaluate.
func newEngine(v *viper.Viper, kv session.KeyValueStore, client *llm.Client, m *metrics.Recorder) (*simulation.Engine, error) {
	cat, err := catalog.Load(v.GetString("scenarios"))
	if err != nil {
		return nil, fmt.Errorf("load scenarios: %w", err)
	}
	cfg := simulation.Config{
		Catalog:   cat,
		Fallback:  fallback.Evaluator{Scoring: v.GetBool("scoring")},
		Persister: session.NewPersister(kv, ""),
		Metrics:   m,
	}
	if client != nil {
		cfg.Evaluator = client
	}
	return simulation.New(cfg)
}

func writeMetrics(v *viper.Viper, m *metrics.Recorder) {
	path := v.GetString("metrics-file")
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		slog.Warn("could not write metrics file", "path", path, "error", err)
		return
	}
	slog.Info("metrics written", "path", path)
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	ctx, v, err := setup(cmd)
	if err != nil {
		return err
	}

	kv, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer kv.Close()

	m := metrics.New()
	defer writeMetrics(v, m)

	client, err := newClient(v, m)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	engine, err := newEngine(v, kv, client, m)
	if err != nil {
		return err
	}

	w := newWizard(engine, cmd.InOrStdin(), cmd.OutOrStdout())
	return w.Run(ctx, v.GetString("name"))
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	ctx, v, err := setup(cmd)
	if err != nil {
		return err
	}

	cat, err := catalog.Load(v.GetString("scenarios"))
	if err != nil {
		return fmt.Errorf("load scenarios: %w", err)
	}
	id := v.GetInt("scenario")
	sc, ok := cat.ByID(id)
	if !ok {
		return fmt.Errorf("scenario %d not found", id)
	}

	text, err := readInput(cmd.InOrStdin(), v.GetString("file"))
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return simulation.ErrEmptyResponse
	}

	m := metrics.New()
	defer writeMetrics(v, m)

	client, err := newClient(v, m)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	ev, err := client.Evaluate(ctx, sc, text, v.GetString("name"))
	if err != nil {
		if !errors.Is(err, llm.ErrServiceFailure) || ctx.Err() != nil {
			return fmt.Errorf("evaluate response: %w", err)
		}
		slog.Warn("evaluation service failed, using offline feedback", "error", err)
		ev = fallback.Evaluator{Scoring: v.GetBool("scoring")}.Evaluate(ctx, sc, text)
		m.Evaluation(metrics.SourceFallback, ev.Score)
	}

	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func readInput(stdin io.Reader, path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx, v, err := setup(cmd)
	if err != nil {
		return err
	}

	kv, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer kv.Close()

	engine, err := newEngine(v, kv, nil, nil)
	if err != nil {
		return err
	}
	ok, err := engine.Resume(ctx)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	if !ok {
		return errors.New("no saved progress to export")
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return engine.Export(w)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx, v, err := setup(cmd)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	kv, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer kv.Close()

	engine, err := newEngine(v, kv, nil, nil)
	if err != nil {
		return err
	}
	if err := engine.Import(ctx, f); err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}
	slog.Info("progress imported", "path", args[0], "responses", len(engine.Entries()))
	return nil
}

func runReset(cmd *cobra.Command, _ []string) error {
	ctx, v, err := setup(cmd)
	if err != nil {
		return err
	}

	kv, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer kv.Close()

	engine, err := newEngine(v, kv, nil, nil)
	if err != nil {
		return err
	}
	return engine.Restart(ctx)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx, v, err := setup(cmd)
	if err != nil {
		return err
	}

	client, err := newClient(v, nil)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	_, err = fmt.Fprintln(cmd.OutOrStdout(), appI18n.T(ctx, "CheckOK"))
	return err
}
