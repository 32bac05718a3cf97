package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"kvittering/internal/extraction"
	"kvittering/internal/ocr"
	"kvittering/internal/receipt"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Local development overrides; missing file is fine
	_ = godotenv.Load()

	fs := ff.NewFlagSet("kvittering")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		storagePath  = fs.StringLong("storage", "./captures", "Directory for in-flight capture images")
		participants = fs.IntLong("participants", 2, "Number of people splitting each settled amount")
		stageTimeout = fs.DurationLong("stage-timeout", 30*time.Second, "Deadline for each remote stage (OCR, completion)")

		ocrURL = fs.StringLong("ocr-url", ocr.DefaultBaseURL, "OCR API base URL")
		ocrKey = fs.StringLong("ocr-key", "", "OCR API key (or set OCR_API_KEY env var)")

		completerType = fs.StringLong("completer", "openai", "Completion provider: 'openai' or 'gemini'")
		openaiKey     = fs.StringLong("openai-key", "", "API key for the OpenAI-compatible endpoint (or set HF_TOKEN env var)")
		openaiURL     = fs.StringLong("openai-url", extraction.DefaultBaseURL, "OpenAI-compatible API base URL")
		openaiModel   = fs.StringLong("openai-model", extraction.DefaultModel, "Model for the OpenAI-compatible endpoint")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")

		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("KVITTERING"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize OCR collaborator
	apiKey := *ocrKey
	if apiKey == "" {
		apiKey = os.Getenv("OCR_API_KEY")
	}
	recognizer, err := ocr.NewClient(*ocrURL, apiKey)
	if err != nil {
		slog.Error("Failed to initialize OCR client", "error", err)
		os.Exit(1)
	}

	// Initialize completion collaborator based on type
	var completer extraction.Completer
	switch *completerType {
	case "openai":
		key := *openaiKey
		if key == "" {
			key = os.Getenv("HF_TOKEN")
		}
		slog.Info("Initializing completion client...", "base_url", *openaiURL, "model", *openaiModel)
		completer, err = extraction.NewOpenAICompleter(key, *openaiURL, *openaiModel)
		if err != nil {
			slog.Error("Failed to initialize completion client", "error", err)
			os.Exit(1)
		}
	case "gemini":
		key := *geminiKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini completer...", "model", *geminiModel)
		completer, err = extraction.NewGeminiCompleter(key, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid completer type", "type", *completerType, "valid", "openai or gemini")
		os.Exit(1)
	}
	extractor := extraction.NewExtractor(completer)
	defer extractor.Close()

	// Initialize capture storage
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize capture storage", "error", err)
		os.Exit(1)
	}

	// Initialize session and server
	session := receipt.NewSession(recognizer, extractor, store, *participants, *stageTimeout)

	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(session, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "participants", *participants)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
