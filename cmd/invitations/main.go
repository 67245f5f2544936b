package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"event-invitations/internal/api"
	"event-invitations/internal/checkin"
	"event-invitations/internal/config"
	"event-invitations/internal/handler"
	"event-invitations/internal/render"
	"event-invitations/internal/storage"
	"event-invitations/internal/whatsapp"
)

type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	store     *storage.Storage
	engine    *render.Engine
	generator *handler.Generator
	validator *checkin.Validator
	scanner   *checkin.Scanner
	server    *api.Server
	whatsapp  *whatsapp.Service
	in        *bufio.Scanner
}

func main() {
	fmt.Println("Event Invitations")
	fmt.Println("=================")

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	log := newLogger(cfg.LogLevel)

	if err := cfg.EnsureDirs(); err != nil {
		log.Fatal().Err(err).Msg("Failed to create working directories")
	}

	store, err := storage.NewStorage(cfg.DatabasePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer store.Close()

	chain := cfg.FontPaths
	if len(chain) == 0 {
		chain = render.DefaultFontChain
	}
	engine := render.NewEngine(render.Options{
		InvitationsDir: cfg.InvitationsDir,
		QRCodesDir:     cfg.QRCodesDir,
		JPEGQuality:    cfg.JPEGQuality,
		DPI:            cfg.InvitationDPI,
		QRSize:         cfg.QRDefaultSize,
	}, nil, render.NewFonts(cfg.FontsDir, chain, log), log)

	validator := checkin.NewValidator(store, cfg.ScanLocation, log)
	scanner := checkin.NewScanner(validator, log)

	a := &app{
		cfg:       cfg,
		log:       log,
		store:     store,
		engine:    engine,
		generator: handler.NewGenerator(store, engine, log),
		validator: validator,
		scanner:   scanner,
		server:    api.NewServer(store, validator, scanner, log),
		in:        bufio.NewScanner(os.Stdin),
	}

	// Ctrl-C is left to the running command; scans and the server stop on it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if cfg.WhatsAppEnabled {
		svc, err := whatsapp.NewService(ctx, &whatsapp.Config{
			DataDir:            cfg.WhatsAppDataDir,
			DefaultCountryCode: cfg.DefaultCountryCode,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize WhatsApp service")
		}
		fmt.Println("Connecting to WhatsApp...")
		if err := svc.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to WhatsApp")
		}
		defer svc.Disconnect()
		a.whatsapp = svc
	}

	go func() {
		a.run(ctx)
		stop()
	}()

	<-ctx.Done()
	fmt.Println("\nShutting down...")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}
