package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"scrimbet/config"
	"scrimbet/events"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const exportInterval = 30 * time.Second

// MetricsProvider turns domain events into OpenTelemetry instruments
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	enabled       bool
	mu            sync.RWMutex

	// Metric instruments
	balanceTransactionsCounter metric.Int64Counter
	balanceVolumeCounter       metric.Int64Counter
	wagersActiveGauge          metric.Int64UpDownCounter
	wagersSettledCounter       metric.Int64Counter
	wagerPayoutCounter         metric.Int64Counter
	matchTransitionsCounter    metric.Int64Counter
	matchBetsCounter           metric.Int64Counter
	matchPoolHist              metric.Int64Histogram
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the meter provider for the configured exporter
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	switch mp.config.MetricsExporter {
	case ExporterConsole:
		exporter, err := stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		log.Info("Using console metric exporter")
		return mp.initializeWithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval)))

	case ExporterNone, "":
		mp.mu.Lock()
		defer mp.mu.Unlock()
		log.Info("Metrics export disabled")
		mp.initialized = true
		return nil

	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.MetricsExporter)
	}
}

func (mp *MetricsProvider) initializeWithReader(reader sdkmetric.Reader) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Debug("Metrics provider already initialized")
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter(serviceName)

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	mp.enabled = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

func (mp *MetricsProvider) createInstruments() error {
	var err error

	mp.balanceTransactionsCounter, err = mp.meter.Int64Counter(
		BalanceTransactionsTotal,
		metric.WithDescription("Total number of balance transactions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create balance transactions counter: %w", err)
	}

	mp.balanceVolumeCounter, err = mp.meter.Int64Counter(
		BalanceVolumeTotal,
		metric.WithDescription("Absolute points moved by balance transactions"),
		metric.WithUnit("{point}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create balance volume counter: %w", err)
	}

	// UpDownCounter for gauge-like behavior
	mp.wagersActiveGauge, err = mp.meter.Int64UpDownCounter(
		WagersActive,
		metric.WithDescription("Current number of open wager sessions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create wagers active gauge: %w", err)
	}

	mp.wagersSettledCounter, err = mp.meter.Int64Counter(
		WagersSettledTotal,
		metric.WithDescription("Total number of settled wager sessions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create wagers settled counter: %w", err)
	}

	mp.wagerPayoutCounter, err = mp.meter.Int64Counter(
		WagerPayoutTotal,
		metric.WithDescription("Points credited by wager settlements"),
		metric.WithUnit("{point}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create wager payout counter: %w", err)
	}

	mp.matchTransitionsCounter, err = mp.meter.Int64Counter(
		MatchTransitionsTotal,
		metric.WithDescription("Total number of match state transitions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create match transitions counter: %w", err)
	}

	mp.matchBetsCounter, err = mp.meter.Int64Counter(
		MatchBetsTotal,
		metric.WithDescription("Total number of accepted match bets"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create match bets counter: %w", err)
	}

	mp.matchPoolHist, err = mp.meter.Int64Histogram(
		MatchPoolSize,
		metric.WithDescription("Total pool of settled matches"),
		metric.WithUnit("{point}"),
		metric.WithExplicitBucketBoundaries(0, 1000, 5000, 10000, 50000, 100000, 500000),
	)
	if err != nil {
		return fmt.Errorf("failed to create match pool histogram: %w", err)
	}

	return nil
}

// Subscribe feeds every domain event on the bus into the instruments
func (mp *MetricsProvider) Subscribe(bus *events.Bus) {
	bus.SubscribeMany(events.AllEventTypes, mp.handleEvent)
}

func (mp *MetricsProvider) handleEvent(ctx context.Context, event events.Event) {
	if !mp.isEnabled() {
		return
	}

	switch e := event.(type) {
	case events.BalanceChangeEvent:
		attrs := metric.WithAttributes(attribute.String(LabelType, string(e.TransactionType)))
		amount := e.ChangeAmount
		if amount < 0 {
			amount = -amount
		}
		mp.balanceTransactionsCounter.Add(ctx, 1, attrs)
		mp.balanceVolumeCounter.Add(ctx, amount, attrs)

	case events.WagerStartedEvent:
		mp.wagersActiveGauge.Add(ctx, 1, metric.WithAttributes(attribute.String(LabelGame, string(e.Game))))

	case events.WagerSettledEvent:
		game := attribute.String(LabelGame, string(e.Game))
		mp.wagersActiveGauge.Add(ctx, -1, metric.WithAttributes(game))
		mp.wagersSettledCounter.Add(ctx, 1, metric.WithAttributes(
			game,
			attribute.String(LabelStatus, string(e.Status)),
			attribute.String(LabelReason, string(e.Reason)),
		))
		mp.wagerPayoutCounter.Add(ctx, e.Payout, metric.WithAttributes(game))

	case events.MatchStateChangeEvent:
		mp.matchTransitionsCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String(LabelState, string(e.NewState)),
		))

	case events.MatchBetPlacedEvent:
		mp.matchBetsCounter.Add(ctx, 1)

	case events.MatchSettledEvent:
		mp.matchPoolHist.Record(ctx, e.TotalPool)
	}
}

// Shutdown flushes pending exports and stops the meter provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.enabled = false
	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.enabled
}
