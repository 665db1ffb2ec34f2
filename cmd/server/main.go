package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/tahcohcat/vocalize-web/config"
	"github.com/tahcohcat/vocalize-web/internal/api"
	"github.com/tahcohcat/vocalize-web/internal/audiostore"
	"github.com/tahcohcat/vocalize-web/internal/auth"
	"github.com/tahcohcat/vocalize-web/internal/database"
	"github.com/tahcohcat/vocalize-web/internal/imagen"
	"github.com/tahcohcat/vocalize-web/internal/logger"
	"github.com/tahcohcat/vocalize-web/internal/mediasession"
	"github.com/tahcohcat/vocalize-web/internal/tts"
	"github.com/tahcohcat/vocalize-web/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error reading config: %v", err)
	}
	if err := logger.Setup(logger.LogLevel(cfg.Log.Level), cfg.Log.Format); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Sync()
	lg := logger.New().Named("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database is only needed for local accounts
	var db *database.DB
	if cfg.Auth.Provider == "" || cfg.Auth.Provider == "local" {
		db, err = database.Open(ctx, cfg.Database.Path)
		if err != nil {
			lg.WithError(err).Error("failed to initialize database")
			os.Exit(1)
		}
		defer db.Close()
	}

	provider, err := auth.NewProvider(ctx, cfg.Auth, db)
	if err != nil {
		lg.WithError(err).Error("failed to initialize auth provider")
		os.Exit(1)
	}
	authHandler := auth.NewHandler(provider, cfg.Auth)

	// TTS and Imagen are optional; their routes are skipped when a client
	// cannot be built so the site still runs without cloud credentials.
	var (
		synth   mediasession.Synthesizer
		catalog mediasession.VoiceCatalog
	)
	if cfg.Tts.Enabled {
		engine, err := tts.New(ctx, cfg.Tts)
		if err != nil {
			lg.WithError(err).Warn("text-to-speech disabled")
		} else {
			defer engine.Close()
			synth = engine
			catalog = tts.NewCatalog(engine, cfg.Tts.VoiceCacheTTL)
			lg.Info("text-to-speech ready", zap.String("engine", engine.Name()))
		}
	}

	var images api.ImageGenerator
	if cfg.Imagen.Enabled {
		generator, err := imagen.NewGenerator(ctx, cfg.Imagen)
		if err != nil {
			lg.WithError(err).Warn("image generation disabled")
		} else {
			images = generator
		}
	}

	audio := audiostore.New("/api/v1/sessions")

	var sessions *api.SessionManager
	hub := websocket.NewHub(func(r *http.Request, id string) (websocket.SessionHandler, error) {
		return sessions.Resolve(r, id)
	}, cfg.Cors.AllowedOrigins)
	sessions = api.NewSessionManager(api.SessionOptions{
		Synthesizer: synth,
		Catalog:     catalog,
		Hub:         hub,
		Audio:       audio,
		Stt:         cfg.Stt,
		Sessions:    cfg.Sessions,
	})

	go hub.Run(ctx)
	go sessions.Run(ctx)

	r := mux.NewRouter()

	// Public routes (no authentication required)
	authHandler.RegisterRoutes(r)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.Server.StaticDir))))

	// Authenticated routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(authHandler.Middleware)

	apiRouter := authRouter.PathPrefix("/api/v1").Subrouter()
	if synth != nil {
		api.NewTTSHandler(synth, catalog).RegisterRoutes(apiRouter)
	}
	if images != nil {
		api.NewImageHandler(images).RegisterRoutes(apiRouter)
	}
	api.NewSessionHandler(sessions, audio).RegisterRoutes(apiRouter)

	hub.RegisterRoutes(authRouter)

	// CORS setup
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Cors.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: c.Handler(r),
	}

	go func() {
		lg.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("auth", provider.Name()),
			zap.String("stt", cfg.Stt.Provider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.WithError(err).Error("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.WithError(err).Error("graceful shutdown failed")
	}
}
