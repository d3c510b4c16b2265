package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/ticket-scanner/internal/i18n"
	"github.com/zombor/ticket-scanner/internal/receipt"
	"github.com/zombor/ticket-scanner/internal/scanning"
	"github.com/zombor/ticket-scanner/internal/sheets"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// scannerConfig holds the flags needed to build an extraction backend
type scannerConfig struct {
	kind        string
	geminiKey   string
	geminiModel string
	ollamaURL   string
	ollamaModel string
	openAIKey   string
	openAIModel string
	openAIURL   string
}

// newScanner builds the configured scanner. A missing API key is not fatal: the
// service runs with a disabled scanner and every receipt is entered by hand.
func newScanner(cfg scannerConfig) (scanning.Scanner, error) {
	var (
		scanner scanning.Scanner
		err     error
	)
	switch cfg.kind {
	case "gemini":
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", cfg.geminiModel)
		scanner, err = scanning.NewGemini(apiKey, cfg.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		scanner, err = scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
	case "openai":
		apiKey := cfg.openAIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		slog.Info("Initializing OpenAI scanner...", "model", cfg.openAIModel, "url", cfg.openAIURL)
		scanner, err = scanning.NewOpenAI(apiKey, cfg.openAIURL, cfg.openAIModel)
	default:
		return nil, fmt.Errorf("invalid scanner type %q (valid: gemini, ollama, openai)", cfg.kind)
	}

	if errors.Is(err, scanning.ErrMissingCredential) {
		slog.Warn("No API key configured, automatic extraction is disabled", "scanner", cfg.kind)
		return scanning.Disabled{}, nil
	}
	if err != nil {
		return nil, err
	}
	return scanner, nil
}

// newLogger builds the default logger from the log flags
func newLogger(format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q (valid: text, json)", format)
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("ticket-scanner")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "ticket-scanner.db", "Database file path")
		storagePath = fs.StringLong("storage", "./tickets", "Storage directory for uploaded images")
		scannerType = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini', 'ollama' or 'openai'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", scanning.DefaultGeminiModel, "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl, llama3.2-vision)")
		openAIKey   = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openAIModel = fs.StringLong("openai-model", scanning.DefaultOpenAIModel, "OpenAI model name")
		openAIURL   = fs.StringLong("openai-url", "", "Base URL of an OpenAI compatible API (optional)")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		sheetConfig = fs.StringLong("sheet-config", "", `Default form config, e.g. {"formUrl":"...","mapping":{"date":"entry.1",...}}`)
		lang        = fs.StringLong("lang", string(i18n.Default), "Default language for messages and exports: es, en or it")
		logFormat   = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("TICKET_SCANNER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger, err := newLogger(*logFormat, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	scanner, err := newScanner(scannerConfig{
		kind:        *scannerType,
		geminiKey:   *geminiKey,
		geminiModel: *geminiModel,
		ollamaURL:   *ollamaURL,
		ollamaModel: *ollamaModel,
		openAIKey:   *openAIKey,
		openAIModel: *openAIModel,
		openAIURL:   *openAIURL,
	})
	if err != nil {
		slog.Error("Failed to initialize scanner", "error", err)
		os.Exit(1)
	}
	defer scanner.Close()

	// Initialize storage
	slog.Info("Initializing storage...", "path", *storagePath)
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	if *sheetConfig != "" {
		if _, err := sheets.ParseFormConfig(*sheetConfig); err != nil {
			slog.Warn("Default sheet config is not usable, submissions must carry their own", "error", err)
		}
	}

	submitter := sheets.NewSubmitter(&http.Client{Timeout: 30 * time.Second})
	receiptService := receipt.NewService(db, scanner, store, submitter, *sheetConfig)

	// Initialize server
	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(receiptService, basicAuth, i18n.Parse(*lang))

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
}
