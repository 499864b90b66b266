// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/omok/internal/auth"
	"github.com/jason-s-yu/omok/internal/cache"
	"github.com/jason-s-yu/omok/internal/config"
	"github.com/jason-s-yu/omok/internal/database"
	"github.com/jason-s-yu/omok/internal/handlers"
	"github.com/jason-s-yu/omok/internal/hub"
	"github.com/jason-s-yu/omok/internal/models"
	"github.com/jason-s-yu/omok/internal/room"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	if cfg.JWTPrivateKeyPath != "" && cfg.JWTPublicKeyPath != "" {
		err = auth.InitFromPath(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.TokenExpiry)
	} else {
		err = auth.Init(cfg.TokenExpiry)
	}
	if err != nil {
		logger.Fatalf("auth init failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, users, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	locks, closeLocks := openLocker(ctx, cfg, logger)
	defer closeLocks()

	coord := room.NewCoordinator(repo, locks, auth.NewRoomPasswordHasher(), logger,
		room.WithTxTimeout(cfg.StoreTxTimeout),
		room.WithMaxCapacity(cfg.MaxRoomCapacity),
	)
	broadcaster := hub.NewBroadcaster(hub.NewRegistry(), logger)
	router := handlers.NewRouter(coord, broadcaster, logger)

	mux := handlers.NewMux(router, handlers.NewUserHandlers(users, logger), handlers.JWTResolver{}, logger, cfg.AllowedOrigins)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s (store=%s, locks=%s)", server.Addr, cfg.StoreBackend, cfg.LockBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("server exited: %v", err)
	}
}

// openStore picks the room repository and user store for cfg.StoreBackend.
func openStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (room.Repository, handlers.UserStore, func()) {
	if cfg.StoreBackend == config.BackendMemory {
		logger.Warn("using in-memory store; rooms and users are lost on restart")
		repo := room.NewMemoryRepository()
		users := database.NewMemoryUsers()
		users.OnCreate = func(u models.User) { repo.SetNickname(u.ID, u.Nickname) }
		return repo, users, func() {}
	}

	pool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("database connection failed: %v", err)
	}
	return database.NewRoomRepository(pool), database.PostgresUsers{}, pool.Close
}

// openLocker picks the per-room lock implementation for cfg.LockBackend.
func openLocker(ctx context.Context, cfg config.Config, logger *logrus.Logger) (room.Locker, func()) {
	if cfg.LockBackend == config.BackendMemory {
		return room.NewKeyedMutex(), func() {}
	}

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis connection failed: %v", err)
	}
	return cache.NewRedisLocker(rdb, cfg.RoomLockTTL), func() { rdb.Close() }
}
