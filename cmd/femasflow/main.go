package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"femasflow/config"
	"femasflow/internal/channel"
	"femasflow/internal/gateway"
	"femasflow/internal/metrics"
	"femasflow/internal/models"
	"femasflow/internal/ustp"
	"femasflow/logger"
	"femasflow/writer"
)

func main() {
	log := logger.GetLogger()

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Femasflow.Name,
		"version": cfg.Femasflow.Version,
	}).Info("starting femasflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
		metrics.StartReporting(ctx)
	}

	events := channel.NewEvents(cfg.Channels.EventBuffer)

	bridgeOpts := ustp.BridgeOptions{
		PingInterval:   cfg.Bridge.PingInterval(),
		ReconnectDelay: cfg.Bridge.ReconnectDelay(),
	}
	gw := gateway.New(cfg,
		func(h ustp.MarketDataHandler) ustp.MarketDataAPI {
			return ustp.NewMarketDataBridge(h, bridgeOpts)
		},
		func(h ustp.TraderHandler) ustp.TraderAPI {
			return ustp.NewTraderBridge(h, bridgeOpts)
		},
		events,
	)

	var kafkaWriter *writer.KafkaWriter
	if cfg.Kafka.Enabled {
		kafkaWriter, err = writer.NewKafkaWriter(cfg, events)
		if err != nil {
			log.WithError(err).Error("failed to create kafka writer")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("kafka disabled; events drain to logs only")
	}

	var recorder *writer.TickRecorder
	if cfg.Recorder.Enabled {
		recorder, err = writer.NewTickRecorder(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create tick recorder")
			os.Exit(1)
		}
	}

	var wg sync.WaitGroup

	// Ticks fan out to the kafka writer and the recorder; the remaining
	// event kinds have a single consumer each.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for tick := range events.Ticks {
			if kafkaWriter != nil {
				kafkaWriter.PublishTick(tick)
			}
			if recorder != nil {
				recorder.Record(tick)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		pumpNotices(ctx, log, events)
	}()

	if kafkaWriter != nil {
		if err := kafkaWriter.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start kafka writer")
			os.Exit(1)
		}
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			drainEvents(ctx, events)
		}()
	}
	if recorder != nil {
		if err := recorder.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start tick recorder")
			os.Exit(1)
		}
	}

	if err := gw.Connect(); err != nil {
		log.WithError(err).Error("failed to connect gateway")
		os.Exit(1)
	}

	for _, symbol := range cfg.Gateway.Symbols {
		gw.Subscribe(models.SubscribeRequest{Symbol: symbol})
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	gw.Close()
	events.Close()
	cancel()

	if kafkaWriter != nil {
		log.Info("stopping kafka writer")
		kafkaWriter.Stop()
	}
	if recorder != nil {
		log.Info("stopping tick recorder")
		recorder.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("femasflow stopped")
}

// pumpNotices surfaces gateway log and error events through the
// structured logger.
func pumpNotices(ctx context.Context, log *logger.Log, events *channel.Events) {
	entry := log.WithComponent("gateway")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events.Logs:
			if !ok {
				return
			}
			entry.Info(msg.Message)
		case ev, ok := <-events.Errors:
			if !ok {
				return
			}
			entry.WithFields(logger.Fields{
				"code":   ev.Code,
				"detail": ev.Detail,
			}).Error(ev.Message)
		}
	}
}

// drainEvents keeps the order, trade, position, account and contract
// channels moving when no kafka writer is consuming them.
func drainEvents(ctx context.Context, events *channel.Events) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events.Orders:
			if !ok {
				return
			}
		case _, ok := <-events.Trades:
			if !ok {
				return
			}
		case _, ok := <-events.Positions:
			if !ok {
				return
			}
		case _, ok := <-events.Accounts:
			if !ok {
				return
			}
		case _, ok := <-events.Contracts:
			if !ok {
				return
			}
		}
	}
}
