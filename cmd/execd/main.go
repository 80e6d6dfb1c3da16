package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"execcore/internal/brokerage/paper"
	"execcore/internal/core"
	"execcore/internal/margin"
	"execcore/internal/obs"
	"execcore/internal/ops"
	"execcore/internal/order"
	"execcore/pkg/conn"
	"execcore/pkg/websocket"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("execd: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to YAML config")
	envPath := flag.String("env", ".env", "Path to env file (optional)")
	flag.Parse()

	cfg, err := ops.Load(*configPath, *envPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.Application,
			ServerAddress:   cfg.Profiling.ServerAddress,
			Logger:          profilerLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return errors.Wrap(err, "start profiler")
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(registry)
	server := serveMetrics(cfg.Metrics.Addr, registry)

	params, err := loadParameters(cfg.Margin)
	if err != nil {
		return err
	}
	multiplier, err := cfg.Margin.Multiplier()
	if err != nil {
		return err
	}
	logs.Infof("loaded %d collateral parameters", params.Len())

	broker := paper.NewBroker()
	defer broker.Close()

	executor, err := core.NewExecutor(
		broker,
		margin.NewFactory(params, cfg.Broker.QuoteCurrency).Model(cfg.Margin.SpotMarginEnabled),
		core.Option{
			QueueSize:      cfg.Order.QueueSize,
			RiskMultiplier: multiplier,
			Metrics:        metrics,
			Order: order.Option{
				StaleAfter: cfg.Order.StaleAfter,
				Trace:      obs.NewTraceGenerator(0),
			},
		},
	)
	if err != nil {
		return err
	}

	if path := cfg.Order.SnapshotPath; path != "" {
		if err := executor.LoadSnapshot(path); err != nil {
			if !os.IsNotExist(err) {
				return errors.Wrap(err, "load snapshot").With("path", path)
			}
		} else {
			logs.Infof("restored positions from %s", path)
		}
	}
	for _, symbol := range cfg.Order.Symbols {
		executor.Manager(symbol)
	}

	go executor.Consume(ctx, broker)
	go executor.Run(ctx, cfg.Order.ManageInterval)

	engine, err := startConnection(ctx, cfg.Connection, metrics)
	if err != nil {
		return err
	}

	logs.Infof("execd started, symbols %v, spot margin %t", cfg.Order.Symbols, cfg.Margin.SpotMarginEnabled)
	<-sys.Shutdown()
	logs.Info("shutting down")

	if engine != nil {
		engine.Stop()
	}
	cancel()

	if path := cfg.Order.SnapshotPath; path != "" {
		if err := executor.SaveSnapshot(path); err != nil {
			logs.Errorf("save snapshot %s, err: %+v", path, err)
		}
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return server.Shutdown(shutdownCtx)
}

func serveMetrics(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logs.Errorf("metrics server, err: %+v", err)
		}
	}()
	return server
}

// loadParameters reads the CSV when one is configured and the database
// otherwise. With both configured, the CSV rows are written to the database.
func loadParameters(cfg ops.MarginConfig) (*margin.Parameters, error) {
	var fromCSV *margin.Parameters
	if cfg.ParametersCSV != "" {
		params, err := margin.LoadParametersCSV(cfg.ParametersCSV)
		if err != nil {
			return nil, err
		}
		fromCSV = params
	}
	if cfg.Database.Driver == "" {
		if fromCSV != nil {
			return fromCSV, nil
		}
		return margin.NewParameters(), nil
	}

	client, err := conn.New(conn.Option{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if err := margin.MigrateParametersDB(client.DB()); err != nil {
		return nil, err
	}
	if fromCSV != nil {
		if err := margin.SaveParametersDB(client.DB(), fromCSV); err != nil {
			return nil, err
		}
		logs.Infof("stored collateral parameters from %s", cfg.ParametersCSV)
		return fromCSV, nil
	}
	return margin.LoadParametersDB(client.DB())
}

// startConnection returns nil when no stream URL is configured.
func startConnection(ctx context.Context, cfg ops.ConnectionConfig, metrics *obs.Metrics) (*websocket.Engine, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	var backoff *websocket.Backoff
	if cfg.ExponentialBackoff {
		b := websocket.DefaultBackoff()
		backoff = &b
	}

	var engine *websocket.Engine
	engine, err := websocket.New(websocket.NewDialer(cfg.URL), handleStream, websocket.Option{
		PingInterval:   cfg.PingInterval,
		SilenceTimeout: cfg.SilenceTimeout,
		ReconnectDelay: cfg.ReconnectDelay,
		Backoff:        backoff,
		Recorder:       metrics,
		OnConnect: func(ctx context.Context, e *websocket.Engine) error {
			if cfg.APIKey == "" {
				return nil
			}
			payload, err := websocket.LoginRequest(cfg.APIKey, cfg.APISecret, cfg.Subaccount, time.Now())
			if err != nil {
				return err
			}
			return e.Send(payload)
		},
		OnDisconnect: func(err error) {
			logs.Warnf("stream disconnected, last inbound %s, err: %+v", engine.LastInbound().Format(time.RFC3339Nano), err)
		},
	})
	if err != nil {
		return nil, err
	}

	for _, sub := range cfg.Subscriptions {
		if err := engine.Subscribe(sub.Channel, sub.Market); err != nil {
			return nil, err
		}
	}
	logs.Infof("stream %s, %d subscriptions", cfg.URL, len(engine.Subscriptions()))
	engine.Start(ctx)
	return engine, nil
}

func handleStream(_ websocket.MessageType, payload []byte) {
	op, ok := websocket.ParseOp(payload)
	if !ok {
		logs.Debugf("stream message without op, %d bytes", len(payload))
		return
	}
	switch op {
	case "error":
		logs.Errorf("stream error: %s", payload)
	case "pong":
	default:
		logs.Debugf("stream %s, %d bytes", op, len(payload))
	}
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{})  { logs.Debugf(format, args...) }
func (profilerLogger) Debugf(format string, args ...interface{}) { logs.Debugf(format, args...) }
func (profilerLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }
