package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"live-auction/internal/auth"
	bidding "live-auction/internal/biddingService"
	"live-auction/internal/config"
	"live-auction/internal/events"
	model "live-auction/internal/models"
	"live-auction/internal/realtime"
	"live-auction/internal/repository"
	"live-auction/internal/server"
	"live-auction/internal/sweeper"
	"live-auction/utils"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		utils.Warn("failed to load .env file", map[string]any{"error": err.Error()})
	}

	cfg, err := config.Load()
	if err != nil {
		utils.Fatal("failed to load configuration", map[string]any{"error": err.Error()})
	}
	if err := utils.SetLevel(cfg.LogLevel); err != nil {
		utils.Warn("invalid log level, keeping default", map[string]any{"log_level": cfg.LogLevel})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openLedger(ctx, cfg.Database)
	if err != nil {
		utils.Fatal("failed to open ledger", map[string]any{"error": err.Error()})
	}
	defer closeRepo()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	hub := realtime.NewHub(realtime.Config{
		PingPeriod:     cfg.WebSocket.PingPeriod,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	}, tokens.ViewerID)
	go hub.Run(ctx)

	broker, closeBroker, err := openBroker(ctx, cfg.Redis, hub)
	if err != nil {
		utils.Fatal("failed to start realtime broker", map[string]any{"error": err.Error()})
	}
	defer closeBroker()

	publisher := events.NewFanout().Add("realtime", realtime.NewNotifier(broker))
	if len(cfg.Kafka.Brokers) > 0 {
		sink := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer sink.Close()
		publisher.Add("kafka", sink)
		utils.Info("kafka event sink enabled", map[string]any{"brokers": cfg.Kafka.Brokers, "topic": cfg.Kafka.Topic})
	}

	biddingSvc := bidding.NewBiddingService(repo, publisher, bidding.Options{
		MinIncrement:     cfg.Auction.MinIncrement,
		AntiSnipeWindow:  cfg.Auction.AntiSnipeWindow,
		PublicBidderName: cfg.Auction.PublicBidderName,
	})

	processor := sweeper.New(repo, publisher, sweeper.Options{
		Interval:     cfg.Auction.SweepInterval,
		GracePeriod:  cfg.Auction.GracePeriod,
		InitialDelay: sweeper.DefaultOptions().InitialDelay,
	})
	go processor.Run(ctx)

	router := server.SetupRouter(server.Deps{
		Service:    biddingSvc,
		Tokens:     tokens,
		Realtime:   hub,
		Processor:  processor,
		BidsPerSec: cfg.RateLimit.BidsPerSecond,
		BidBurst:   cfg.RateLimit.Burst,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.Info("starting auction server", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		utils.Info("shutdown signal received", nil)
	case err := <-errCh:
		utils.Error("server failed", map[string]any{"error": err.Error()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("graceful shutdown failed", map[string]any{"error": err.Error()})
	}
	stop()
	utils.Info("server stopped", nil)
}

// openLedger returns the in-memory ledger when no database URL is configured
func openLedger(ctx context.Context, cfg config.DatabaseConfig) (repository.AuctionDB, func(), error) {
	if cfg.URL == "" {
		repo := repository.NewMemoryRepo()
		if cfg.Seed {
			users, listings := sampleData(time.Now().UTC())
			for _, u := range users {
				repo.AddUser(u)
			}
			for _, l := range listings {
				repo.AddListing(l)
			}
		}
		utils.Info("using in-memory ledger", map[string]any{"seeded": cfg.Seed})
		return repo, func() {}, nil
	}

	if cfg.Migrate {
		if err := repository.Migrate(cfg.URL); err != nil {
			return nil, nil, err
		}
	}
	repo, err := repository.NewPostgresRepo(ctx, cfg.URL, cfg.MaxConns)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Seed {
		users, listings := sampleData(time.Now().UTC())
		for _, u := range users {
			if err := repo.UpsertUser(ctx, u); err != nil {
				repo.Close()
				return nil, nil, fmt.Errorf("seed user %s: %w", u.UserID, err)
			}
		}
		for _, l := range listings {
			if err := repo.UpsertListing(ctx, l); err != nil {
				repo.Close()
				return nil, nil, fmt.Errorf("seed listing %s: %w", l.ID, err)
			}
		}
	}
	utils.Info("using postgres ledger", map[string]any{"max_conns": cfg.MaxConns, "seeded": cfg.Seed})
	return repo, repo.Close, nil
}

// openBroker fans out through Redis when configured so every instance's sockets see every bid
func openBroker(ctx context.Context, cfg config.RedisConfig, hub *realtime.Hub) (realtime.Broker, func(), error) {
	if cfg.URL == "" {
		return realtime.NewLocalBroker(hub), func() {}, nil
	}

	addr, password, db := cfg.URL, cfg.Password, cfg.DB
	if strings.Contains(cfg.URL, "://") {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		addr = parsed.Addr
		if password == "" {
			password = parsed.Password
		}
		if db == 0 {
			db = parsed.DB
		}
	}

	broker, err := realtime.NewRedisBroker(ctx, realtime.RedisOptions{
		Addr:     addr,
		Password: password,
		DB:       db,
		Prefix:   cfg.ChannelPrefix,
	}, hub)
	if err != nil {
		return nil, nil, err
	}
	if err := broker.Start(ctx); err != nil {
		broker.Close()
		return nil, nil, err
	}
	return broker, func() {
		if err := broker.Close(); err != nil {
			utils.Warn("redis broker close failed", map[string]any{"error": err.Error()})
		}
	}, nil
}

// sampleData is the demo catalogue loaded when database.seed is on
func sampleData(now time.Time) ([]model.User, []model.Listing) {
	users := []model.User{
		{UserID: "seller1", DisplayName: "Ada's Antiques", Phone: "+2348000000001", PhoneVerified: true},
		{UserID: "user1", DisplayName: "Tunde", Phone: "+2348000000002", PhoneVerified: true},
		{UserID: "user2", DisplayName: "Ngozi", Phone: "+2348000000003", PhoneVerified: true},
		{UserID: "user3", DisplayName: "Emeka", Phone: "+2348000000004"},
	}
	listings := []model.Listing{
		{
			ID:                "listing1",
			Title:             "Vintage record player",
			SellerID:          "seller1",
			SaleType:          model.SaleTypeAuction,
			Price:             50000,
			AuctionStartTime:  model.TimePtr(now.Add(-time.Hour)),
			AuctionEndTime:    model.TimePtr(now.Add(30 * time.Minute)),
			IsActive:          true,
			AllowedBidderType: model.BidderPolicyVerifiedOnly,
			CreatedAt:         now,
		},
		{
			ID:                "listing2",
			Title:             "Carved wooden stool",
			SellerID:          "seller1",
			SaleType:          model.SaleTypeAuction,
			Price:             20000,
			AuctionStartTime:  model.TimePtr(now.Add(-time.Hour)),
			AuctionEndTime:    model.TimePtr(now.Add(3 * time.Minute)),
			IsActive:          true,
			AllowedBidderType: model.BidderPolicyAny,
			CreatedAt:         now,
		},
		{
			ID:        "listing3",
			Title:     "Brass lamp",
			SellerID:  "seller1",
			SaleType:  model.SaleTypeFixed,
			Price:     15000,
			IsActive:  true,
			CreatedAt: now,
		},
	}
	return users, listings
}
