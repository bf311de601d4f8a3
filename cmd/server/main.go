package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"darkbet-backend/internal/api"
	"darkbet-backend/internal/auth"
	"darkbet-backend/internal/config"
	"darkbet-backend/internal/engine"
	"darkbet-backend/internal/events"
	"darkbet-backend/internal/indexer"
	"darkbet-backend/internal/logger"
	"darkbet-backend/internal/market"
	"darkbet-backend/internal/metrics"
	"darkbet-backend/internal/resolution"
	"darkbet-backend/internal/resolver"
	"darkbet-backend/internal/settlement"
	"darkbet-backend/internal/vault"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	params, err := cfg.Params()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	roles, err := buildRoles(cfg)
	if err != nil {
		return err
	}
	log.Info("starting darkbet backend",
		zap.String("owner", roles.Owner().Hex()),
		zap.String("resolver", roles.Resolver().Hex()),
		zap.String("min_bet", market.FormatEther(params.MinBet)),
		zap.Int64("fee_bps", params.FeeBps),
		zap.Duration("reveal_timeout", params.RevealTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	bus := events.NewBus(cfg.EventBuffer, log.Named("events"))
	bus.OnSinkError(m.ObserveSinkFailure)
	m.TrackDropped(bus.Dropped)

	// Core components
	v := vault.New()
	markets := market.NewManager(params, roles,
		market.WithPublisher(bus),
		market.WithLogger(log.Named("markets")))
	eng := engine.New(markets, v, bus, log.Named("engine"))
	coord := resolution.NewCoordinator(markets, eng.Book(), bus, log.Named("resolution"))
	settler := settlement.New(markets, eng.Book(), v, bus, log.Named("settlement"))

	// Event sinks
	history := events.NewHistory(1000)
	hub := api.NewHub(log.Named("ws"))
	bus.Subscribe(history)
	bus.Subscribe(hub)
	bus.Subscribe(metrics.NewSink(m, func() ([]*market.Market, *big.Int, *big.Int) {
		return markets.List(), v.TotalEscrowed(), v.FeeBalance()
	}))

	var checks []metrics.HealthFunc
	var mirror api.Mirror

	if cfg.PostgresDSN != "" {
		db, err := indexer.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer db.Close()
		pg := indexer.NewPostgresSink(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
		bus.Subscribe(pg)
		mirror = pg
		checks = append(checks, db.PingContext)
		log.Info("postgres event mirror enabled")
	}

	if cfg.RedisAddr != "" {
		rdb, err := indexer.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		bus.Subscribe(indexer.NewRedisSink(rdb, cfg.RedisEventsChannel))
		checks = append(checks, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		log.Info("redis event channel enabled", zap.String("channel", cfg.RedisEventsChannel))
	}

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		writer := indexer.NewKafkaWriter(brokers, cfg.KafkaTopicEvents)
		defer writer.Close()
		bus.Subscribe(indexer.NewKafkaSink(writer))
		log.Info("kafka event topic enabled", zap.String("topic", cfg.KafkaTopicEvents))
	}

	// Automatic resolution
	var res resolution.Resolver = resolver.Undecided{}
	if cfg.ResolverURL != "" {
		res = resolver.New(cfg.ResolverURL, cfg.ResolverTimeout)
	} else {
		log.Warn("RESOLVER_URL not set, expired markets will close as undecided")
	}
	poller := resolution.NewPoller(coord, res, roles.Resolver(),
		cfg.ResolutionInterval, params.RevealTimeout, log.Named("poller"))

	// HTTP
	apiServer := api.NewServer(api.Deps{
		Markets: markets,
		Engine:  eng,
		Coord:   coord,
		Settler: settler,
		Vault:   v,
		History: history,
		Hub:     hub,
		Mirror:  mirror,
		Metrics: m,
		Log:     log.Named("api"),
		MaxSkew: cfg.AuthMaxSkew,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := metrics.NewServer(cfg.MetricsPort, reg, func(ctx context.Context) error {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bus.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error {
		log.Info("api listening", zap.String("addr", httpServer.Addr))
		return serve(httpServer)
	})
	g.Go(func() error {
		log.Info("metrics/health listening", zap.String("addr", metricsServer.Addr))
		return serve(metricsServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(httpServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server stopped", zap.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// buildRoles takes the owner and resolver from config, falling back to the
// address of PRIVATE_KEY.
func buildRoles(cfg *config.Config) (*market.Roles, error) {
	var keyAddr common.Address
	if cfg.PrivateKey != "" {
		signer, err := auth.NewSigner(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("PRIVATE_KEY: %w", err)
		}
		keyAddr = signer.Address()
	}

	owner := keyAddr
	if cfg.OwnerAddress != "" {
		owner = common.HexToAddress(cfg.OwnerAddress)
	}
	resolverAddr := keyAddr
	if cfg.ResolverAddress != "" {
		resolverAddr = common.HexToAddress(cfg.ResolverAddress)
	}
	return market.NewRoles(owner, resolverAddr), nil
}
