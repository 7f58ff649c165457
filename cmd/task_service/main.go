package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task_service/internal/auth"
	"task_service/internal/config"
	"task_service/internal/http_server/handlers/confirm"
	"task_service/internal/http_server/handlers/login"
	"task_service/internal/http_server/handlers/logout"
	"task_service/internal/http_server/handlers/refresh"
	"task_service/internal/http_server/handlers/register"
	"task_service/internal/http_server/handlers/task"
	"task_service/internal/http_server/handlers/twofa"
	"task_service/internal/http_server/handlers/users"
	"task_service/internal/http_server/handlers/verifemail"
	"task_service/internal/http_server/middleware/authn"
	"task_service/internal/lib/jwt"
	sl "task_service/internal/lib/logger"
	"task_service/internal/rabbitmq"
	"task_service/internal/storage/postgres"
	"task_service/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting task service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	codec, err := loadCodec(cfg)
	if err != nil {
		log.Error("failed to load token codec", sl.Err(err))
		os.Exit(1)
	}

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", sl.Err(err))
		os.Exit(1)
	}
	defer storage.Close()

	codes, err := redis.New(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("failed to connect redis", sl.Err(err))
		os.Exit(1)
	}
	defer codes.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", sl.Err(err))
		os.Exit(1)
	}
	defer msgBroker.Close()

	authService := auth.New(
		log,
		storage,
		storage,
		codes,
		msgBroker,
		codec,
		cfg.TwoFactor.CodeLength,
		cfg.TwoFactor.CodeTTL,
		cfg.HTTPServer.BaseURL,
	)

	router := setupRouter(log, authService, storage, storage, cfg)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func setupRouter(
	log *slog.Logger,
	authService *auth.Auth,
	tasks task.TaskService,
	userStore users.UserService,
	cfg *config.Config,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	requireAuth := authn.New(log, authService)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", register.New(log, authService))
		r.Post("/login", login.New(log, authService, cfg.Tokens))
		r.Post("/2fa", twofa.New(log, authService, cfg.Tokens))
		r.Post("/refresh", refresh.New(log, authService, cfg.Tokens))
		r.Post("/logout", logout.New(log))

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/verif-email", verifemail.New(log, authService, cfg.Tokens))
			r.Get("/confirm-email/{token}", confirm.New(log, authService))
		})
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", users.NewList(log, userStore))
		r.Get("/{id}", users.NewGet(log, userStore))
		r.Put("/{id}", users.NewUpdate(log, userStore))
		r.Delete("/{id}", users.NewDelete(log, userStore))
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", task.NewList(log, tasks))
		r.Post("/", task.NewCreate(log, tasks))
		r.Get("/{id}", task.NewGet(log, tasks))
		r.Put("/{id}", task.NewUpdate(log, tasks))
		r.Delete("/{id}", task.NewDelete(log, tasks))
	})

	return r
}

func loadCodec(cfg *config.Config) (*jwt.Codec, error) {
	privatePEM, err := os.ReadFile(cfg.Tokens.PrivateKeyPath)
	if err != nil {
		return nil, err
	}

	publicPEM, err := os.ReadFile(cfg.Tokens.PublicKeyPath)
	if err != nil {
		return nil, err
	}

	return jwt.NewCodec(
		privatePEM,
		publicPEM,
		cfg.Tokens.AccessTokenTTL,
		cfg.Tokens.RefreshTokenTTL,
		cfg.Tokens.VerificationTokenTTL,
	)
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
