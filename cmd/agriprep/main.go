package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-co-op/gocron"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agriprep/agriprep/internal/auth"
	"github.com/agriprep/agriprep/internal/bank"
	"github.com/agriprep/agriprep/internal/exam"
	"github.com/agriprep/agriprep/internal/handler"
	"github.com/agriprep/agriprep/internal/progress"
	"github.com/agriprep/agriprep/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agriprep",
		Short: "Licensure exam review platform backend",
	}

	serve := serveCmd()
	root.AddCommand(serve)

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `agriprep --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "agriprep.db", "SQLite database path")
	f.StringP("questions", "q", "questions", "Directory with per-subject question JSON files")
	f.String("jwt-secret", "", "HMAC secret for bearer tokens (or set AGRIPREP_JWT_SECRET)")
	f.Duration("token-ttl", auth.DefaultTokenTTL, "Bearer token lifetime")
	f.Duration("exam-duration", exam.DefaultDuration, "Time limit per exam attempt")
	f.IntP("exam-questions", "n", bank.DefaultExamLength, "Number of questions per exam")
	f.Duration("sweep-interval", 5*time.Minute, "How often to finalize expired idle sessions (0 disables)")
	f.Duration("session-retention", time.Hour, "How long finished sessions stay readable")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
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

	v.SetEnvPrefix("AGRIPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("agriprep")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/agriprep")
	v.AddConfigPath("/etc/agriprep")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	questionBank, err := bank.Load(v.GetString("questions"), v.GetInt("exam-questions"))
	if err != nil {
		return fmt.Errorf("load question bank: %w", err)
	}

	authSvc, err := auth.New(db, v.GetString("jwt-secret"), v.GetDuration("token-ttl"))
	if err != nil {
		return err
	}

	aggregator := progress.New(db)
	machine := exam.New(questionBank, aggregator, v.GetDuration("exam-duration"))

	// Background sweep for expired idle sessions. Optional hardening: lazy
	// deadline checks already keep scoring correct without it.
	if interval := v.GetDuration("sweep-interval"); interval > 0 {
		retention := v.GetDuration("session-retention")
		scheduler := gocron.NewScheduler(time.UTC)
		_, err := scheduler.Every(interval).Do(func() {
			machine.Sweep(cmd.Context(), retention)
		})
		if err != nil {
			return fmt.Errorf("schedule session sweep: %w", err)
		}
		scheduler.StartAsync()
		defer scheduler.Stop()
	}

	h := handler.New(db, authSvc, machine)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"questions", v.GetString("questions"),
		"exam_questions", v.GetInt("exam-questions"),
		"exam_duration", v.GetDuration("exam-duration"),
		"token_ttl", v.GetDuration("token-ttl"),
	)
	return http.ListenAndServe(addr, r)
}
