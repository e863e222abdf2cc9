package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/config"
	"github.com/argushq/argus/internal/engine"
	"github.com/argushq/argus/internal/model"
	"github.com/argushq/argus/internal/storage"
)

// httpCollector fetches each declared field's selector as a URL and
// returns the response body as a single extracted item. Real deployments
// plug in their own extraction layer.
type httpCollector struct {
	client *http.Client
}

func (c *httpCollector) Collect(ctx context.Context, target *model.CollectionTarget) (map[string][]model.ExtractedItem, error) {
	payload := make(map[string][]model.ExtractedItem, len(target.Descriptor))
	for field, url := range target.Descriptor {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request for %s: %w", field, err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s failed: %w", field, err)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s failed: %w", field, err)
		}
		payload[field] = []model.ExtractedItem{{Text: string(body)}}
	}
	return payload, nil
}

// logNotifier writes alerts to the process log
type logNotifier struct {
	logger *zap.Logger
}

func (n *logNotifier) Notify(ctx context.Context, alert *model.Alert) error {
	n.logger.Warn("ALERT",
		zap.String("alert_id", alert.ID),
		zap.String("rule_id", alert.RuleID),
		zap.String("severity", string(alert.Severity)),
		zap.String("message", alert.Message))
	return nil
}

// staticMetrics serves metric lookups from a fixed map; hosts wire a
// market-data client here
type staticMetrics struct {
	values map[string]float64
}

func (m *staticMetrics) GetMetric(ctx context.Context, name string) (float64, error) {
	value, ok := m.values[name]
	if !ok {
		return 0, fmt.Errorf("unknown metric: %s", name)
	}
	return value, nil
}

// emptyFeed returns no recent text items
type emptyFeed struct{}

func (emptyFeed) RecentItems(ctx context.Context, source string) ([]string, error) {
	return nil, nil
}

// allReachable treats every collaborator as reachable
type allReachable struct{}

func (allReachable) IsReachable(name string) bool { return true }

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load("./config")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Optional NATS event bridge
	var js nats.JetStreamContext
	if cfg.NATS.Enabled {
		opts := []nats.Option{
			nats.Name("argus"),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.ReconnectWait(cfg.NATS.ReconnectWait),
			nats.Timeout(cfg.NATS.ConnectTimeout),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				logger.Warn("NATS disconnected", zap.Error(err))
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
			}),
		}

		var nc *nats.Conn
		for i := 0; i < cfg.NATS.MaxReconnects; i++ {
			nc, err = nats.Connect(cfg.NATS.URL, opts...)
			if err == nil {
				break
			}
			logger.Warn("Failed to connect to NATS, retrying...",
				zap.Int("attempt", i+1),
				zap.Error(err))
			time.Sleep(time.Second * time.Duration(i+1))
		}
		if err != nil {
			logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
		}
		defer nc.Close()

		js, err = nc.JetStream()
		if err != nil {
			logger.Fatal("Failed to create JetStream context", zap.Error(err))
		}
	}

	archive, err := storage.NewResultArchive(logger, cfg.Storage.Path)
	if err != nil {
		logger.Fatal("Failed to open result archive", zap.Error(err))
	}
	defer archive.Close()

	eng, err := engine.New(engine.Options{
		Config:    cfg,
		Collector: &httpCollector{client: &http.Client{Timeout: cfg.Scheduler.CollectorTimeout}},
		Sink:      archive,
		Notifier:  &logNotifier{logger: logger},
		Metrics:   &staticMetrics{values: map[string]float64{}},
		Feed:      emptyFeed{},
		Probe:     allReachable{},
		Logger:    logger,
		JetStream: js,
	})
	if err != nil {
		logger.Fatal("Failed to build engine", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng.Start(ctx)

	// Baseline mode so tasks can run out of the box
	standard := &model.ExecutionMode{
		ID:   "standard",
		Name: "Standard",
		Capabilities: []model.Capability{
			model.CapabilityDataAnalysis,
			model.CapabilityRealTimeMonitoring,
			model.CapabilityWebScraping,
		},
	}
	if err := eng.RegisterMode(standard); err != nil {
		logger.Fatal("Failed to register mode", zap.Error(err))
	}
	if err := eng.ActivateMode("standard"); err != nil {
		logger.Fatal("Failed to activate mode", zap.Error(err))
	}

	// Example target and rule so a fresh install produces output
	if _, err := eng.RegisterTarget(&model.CollectionTarget{
		ID:       "example-news",
		Name:     "Example news front page",
		Category: model.TargetCategoryNews,
		Descriptor: model.TargetDescriptor{
			"front_page": "https://example.com/",
		},
		Frequency: 5 * time.Minute,
		Active:    true,
	}); err != nil {
		logger.Error("Failed to register example target", zap.Error(err))
	}

	if _, err := eng.RegisterRule(&model.AutomationRule{
		ID:   "morning-refresh",
		Name: "Morning refresh",
		Trigger: model.TriggerSpec{
			Type: model.TriggerTimeBased,
			Time: "09:30",
			Days: []string{"MON", "TUE", "WED", "THU", "FRI"},
		},
		Actions: []model.Action{
			model.ScrapeAction{Category: model.TargetCategoryNews},
			model.AnalyzeAction{Name: "morning-analysis", Payload: json.RawMessage(`{"fields":{}}`)},
		},
		Active: true,
	}); err != nil {
		logger.Error("Failed to register example rule", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Periodic snapshot logging
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := eng.Snapshot()
				logger.Info("Engine snapshot",
					zap.Int("targets", len(snap.Targets)),
					zap.Int("queue_depth", snap.QueueDepth),
					zap.String("current_mode", snap.CurrentMode),
					zap.Int("rules", len(snap.Rules)),
					zap.Int("history", len(snap.History)),
					zap.Int("skips", len(snap.Skips)),
					zap.Float64("cpu_percent", snap.Resources.CPUPercent))
			}
		}
	}()

	<-ctx.Done()

	eng.Stop()
	logger.Info("Server shutting down gracefully")
}
