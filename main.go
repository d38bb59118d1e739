package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"PPBridge/global/config"
	"PPBridge/logger"
	"PPBridge/service/assets"
	"PPBridge/service/bridge"
	"PPBridge/service/chat"
	"PPBridge/service/dispatcher"
	"PPBridge/service/health"
	"PPBridge/service/lifecycle"
	"PPBridge/service/metrics"
	bredis "PPBridge/service/storage/redis"
	"PPBridge/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "", "path to the YAML config file (defaults and BRIDGE_ env when empty)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("loading config", zap.Error(err))
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		logger.Error("initialising logger", zap.Error(err))
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("bridge starting",
		zap.String("config", *cfgPath),
		zap.String("driver", cfg.Stream.Driver),
		zap.String("addr", cfg.Server.Addr),
	)

	if err := run(cfg, logger.Log); err != nil {
		logger.Error("bridge exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx := context.Background()
	ids.SetNodeID(cfg.Server.NodeID)
	if cfg.Server.PingInterval == 0 {
		log.Warn("websocket keep-alive pings disabled")
	}

	// Optional collaborators. A failure here degrades the bridge instead of
	// stopping it.
	var opts []bridge.Option
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		c, err := bredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("session mirror unavailable", zap.Error(err))
		} else {
			rdb = c
			opts = append(opts, bridge.WithMirror(bredis.NewMirror(c, cfg.Redis.KeyPrefix, cfg.Redis.TTL)))
		}
	}

	var pool *pgxpool.Pool
	var metricsStore metrics.Store
	if cfg.Database.Enabled {
		p, err := metrics.NewPool(ctx, cfg.Database)
		if err != nil {
			log.Warn("metrics storage unavailable", zap.Error(err))
		} else {
			pool = p
			metricsStore = metrics.NewPgStore(p)
		}
	}

	var source bridge.Source
	var sink bridge.Sink
	stream, err := dispatcher.Open(ctx, cfg, log)
	if err != nil {
		log.Error("event stream unavailable, serving websockets without a broker",
			zap.String("driver", cfg.Stream.Driver), zap.Error(err))
		stream = nil
	} else {
		source, sink = stream.Source, stream.Sink
	}

	registry := bridge.NewRegistry(log.Named("registry"))
	store := bridge.NewStore(bridge.Retention{TTL: cfg.Session.TTL, MaxEntries: cfg.Session.MaxEntries})
	b := bridge.New(log.Named("bridge"), registry, store, opts...)
	consumer := bridge.NewConsumer(log.Named("consumer"), b)
	pub := bridge.NewPublisher(log.Named("publisher"), sink, cfg.Server.PublishTimeout)

	ws := chat.NewServer(b, pub, chat.Options{
		Client: chat.ClientOptions{
			SendQueue:    cfg.Server.SendQueue,
			WriteTimeout: cfg.Server.WriteTimeout,
			PingInterval: cfg.Server.PingInterval,
		},
	}, log)

	gin.SetMode(gin.ReleaseMode)
	router := chat.NewRouter(chat.RouterDeps{
		WS:      ws,
		WsPath:  cfg.Server.WsPath,
		Bridge:  b,
		Assets:  assets.New(cfg.Assets.Root, log.Named("assets")),
		Metrics: metricsStore,
		Log:     log,
	})
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	lc := lifecycle.New(log.Named("lifecycle"), cfg.Server.ShutdownGrace)

	// Stopped in reverse: consumer, http, health, connections, stream,
	// persistence.
	lc.Add("persistence", lifecycle.Closer(func() error {
		if pool != nil {
			pool.Close()
		}
		if rdb != nil {
			return rdb.Close()
		}
		return nil
	}))
	lc.Add("stream", lifecycle.Closer(func() error {
		pub.Wait()
		return stream.Close()
	}))
	lc.Add("connections", &lifecycle.FuncService{StopFn: func(ctx context.Context) error {
		b.Shutdown()
		done := make(chan struct{})
		go func() {
			ws.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}})
	if cfg.Server.HealthAddr != "" {
		hs := health.New(cfg.Server.HealthAddr, log.Named("health"))
		lc.Add("health", &lifecycle.FuncService{StartFn: hs.Start, StopFn: hs.Stop})
	}
	lc.Add("http", &lifecycle.FuncService{
		StartFn: func(context.Context) error {
			log.Info("http listening", zap.String("addr", srv.Addr), zap.String("ws", cfg.Server.WsPath))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		StopFn: srv.Shutdown,
	})
	if source != nil {
		lc.Add("consumer", consumerService(consumer, source, log))
	}

	return lc.Run(ctx)
}

// consumerService runs the consumer loop; Stop cancels it and waits for the
// in-flight event to finish. A source failure leaves the rest of the bridge
// serving.
func consumerService(c *bridge.Consumer, src bridge.Source, log *zap.Logger) lifecycle.Service {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	return &lifecycle.FuncService{
		StartFn: func(context.Context) error {
			defer close(done)
			if err := c.Run(runCtx, src); err != nil {
				log.Error("inbound consumer failed, no further assignments will arrive", zap.Error(err))
			}
			return nil
		},
		StopFn: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}
