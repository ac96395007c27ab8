package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ammar1510/huddle/internal/api"
	"github.com/ammar1510/huddle/internal/auth"
	"github.com/ammar1510/huddle/internal/cache"
	"github.com/ammar1510/huddle/internal/chat"
	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/friends"
	"github.com/ammar1510/huddle/internal/live"
	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/metrics"
	"github.com/ammar1510/huddle/internal/websocket"
)

var logFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&logFile, "log-file", "server.log", "also append logs to this file (empty disables)")
}

func serve(ctx context.Context) error {
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	auth.InitJWTKey([]byte(cfg.JWTSecret))

	dsn, err := cfg.DSN()
	if err != nil {
		return err
	}
	dbType := database.DatabaseType(cfg.DBType)
	db, err := database.NewDatabase(dbType, dsn)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	log.Info("Connected to %s database", dbType)

	var store database.Store = db
	if cfg.CacheTTL > 0 {
		store = cache.New(db, cfg.CacheSize, cfg.CacheTTL)
		log.Info("Read cache enabled (size %d, ttl %s)", cfg.CacheSize, cfg.CacheTTL)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := live.NewHub()
	metrics.WatchSubscriptions(hub.Len)
	var pub live.Publisher = hub
	if cfg.RedisURL != "" {
		client, err := live.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		relay := live.NewRedisRelay(hub, client)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Redis relay stopped: %v", err)
			}
		}()
		pub = relay
		log.Info("Relaying live updates through redis")
	}

	chatSvc := chat.NewService(store, hub, pub)
	friendSvc := friends.NewService(store, hub, pub)

	wsManager := websocket.NewManager(chatSvc, friendSvc, websocket.Options{
		MessagesPerMinute: cfg.WSMessagesPerMinute,
		AllowedOrigins:    cfg.Origins(),
	})
	go wsManager.Run(ctx)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), metrics.Middleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Origins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api.RegisterRoutes(router, api.Handlers{
		Auth:      api.NewAuthHandler(store),
		Friends:   api.NewFriendsHandler(friendSvc),
		Chats:     api.NewChatHandler(chatSvc),
		WebSocket: wsManager.HandleWebSocket,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("start server: %w", err)
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	// Give in-flight requests 5 seconds to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited properly")
	return nil
}
