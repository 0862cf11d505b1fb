package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/stargety/oasis-mapeditor/internal/asset"
	"github.com/stargety/oasis-mapeditor/internal/auth"
	"github.com/stargety/oasis-mapeditor/internal/collab"
	"github.com/stargety/oasis-mapeditor/internal/config"
	"github.com/stargety/oasis-mapeditor/internal/document"
	"github.com/stargety/oasis-mapeditor/internal/export"
	mw "github.com/stargety/oasis-mapeditor/internal/middleware"
	"github.com/stargety/oasis-mapeditor/internal/project"
	"github.com/stargety/oasis-mapeditor/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		slog.Error("migrate database", "error", err)
		os.Exit(1)
	}

	queries := store.New(pool)

	authService := auth.NewService(queries, cfg.JWTSecret, cfg.TokenTTL)
	authHandler := auth.NewHandler(authService)

	mapService := project.NewService(queries, cfg.SnapshotRetention)
	mapHandler := project.NewHandler(mapService)

	// The playground map lives only in memory while someone has it open.
	docLoader := func(ctx context.Context, mapID string) (*document.MapDocument, error) {
		if mapID == cfg.PlaygroundMapID {
			return document.NewSampleDocument(mapID), nil
		}
		return mapService.LoadDocument(ctx, mapID)
	}
	docSaver := func(ctx context.Context, mapID string, doc *document.MapDocument) error {
		if mapID == cfg.PlaygroundMapID {
			return nil
		}
		return mapService.SaveDocument(ctx, mapID, doc)
	}

	hub := collab.NewHub(docLoader, docSaver, cfg.SaveInterval)
	go hub.Run()

	assetHandler, err := asset.NewHandler(cfg.AssetDir)
	if err != nil {
		slog.Error("init assets", "error", err, "dir", cfg.AssetDir)
		os.Exit(1)
	}
	exportHandler := export.NewHandler()

	r := mux.NewRouter()

	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.CORS(cfg.AllowedOrigins))

	r.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	r.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Assets and export are public so the playground can use them.
	r.HandleFunc("/assets/upload", assetHandler.Upload).Methods("POST", "OPTIONS")
	r.PathPrefix("/assets/").Handler(assetHandler.Serve()).Methods("GET")
	r.HandleFunc("/export/svg", exportHandler.ExportSVG).Methods("POST", "OPTIONS")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authService.AuthMiddleware)

	api.HandleFunc("/me", authHandler.Me).Methods("GET")
	api.HandleFunc("/assets/{assetId}", assetHandler.HandleDelete).Methods("DELETE")
	mapHandler.Routes(api)

	ws := &wsHandler{
		hub:            hub,
		auth:           authService,
		maps:           mapService,
		playgroundID:   cfg.PlaygroundMapID,
		originPatterns: cfg.OriginPatterns(),
	}
	r.Handle("/ws/map/{mapId}", ws)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")

		// Stop the hub first so dirty maps are saved while the pool is open.
		hub.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
