package di

import (
	"context"
	"fmt"
	"time"

	"StockVote/internal/consensus"
	domrepo "StockVote/internal/domain/repository"
	"StockVote/internal/handler/api"
	internalrepo "StockVote/internal/repository"
	"StockVote/internal/strategy"
	"StockVote/internal/usecase"
	"StockVote/pkg/cache"
	pkgch "StockVote/pkg/clickhouse"
	"StockVote/pkg/config"
	xhttp "StockVote/pkg/http"
	pkgkafka "StockVote/pkg/kafka"
	applogger "StockVote/pkg/logger"
	"StockVote/pkg/metrics"
	"StockVote/pkg/postgres"
	"StockVote/pkg/server"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics registers the analysis collectors on the default registry,
// which also carries the Kafka client metrics.
func ProvideMetrics() *metrics.Recorder {
	pkgkafka.SetConsumerMetricsRegisterer(prometheus.DefaultRegisterer)
	return metrics.New(prometheus.DefaultRegisterer)
}

func ProvideMetricsPort(rec *metrics.Recorder) domrepo.Metrics { return rec }

// ProvideClickHouseClient connects to the bar warehouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	c := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithHost(c.Host),
		pkgch.WithPort(c.Port),
		pkgch.WithDatabase(c.Database),
		pkgch.WithCredentials(c.User, c.Password),
		pkgch.WithMaxConnections(c.MaxOpenConns, c.MaxIdleConns),
		pkgch.WithHTTP(c.UseHTTP),
		pkgch.WithTimeouts(c.DialTimeout, c.ReadTimeout),
		pkgch.WithMaxExecutionTime(c.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvidePostgres opens the result database and applies migrations when
// postgres.migrate is set.
func ProvidePostgres(cfg *config.Config) (*sqlx.DB, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, db.DB); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return db, func() { _ = db.Close() }, nil
}

// ProvideCache returns a Redis-backed layered cache when redis is enabled and
// a process-local cache otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	r := cfg.Redis
	if !r.Enabled {
		mc := cache.NewMemoryCache(
			cache.WithMemoryMaxSize(r.MemorySize),
			cache.WithMemoryCleanup(time.Minute),
			cache.WithMemoryDefaultTTL(r.SeriesTTL),
		)
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(r.Host),
		cache.WithRedisPort(r.Port),
		cache.WithRedisPassword(r.Password),
		cache.WithRedisDB(r.DB),
		cache.WithRedisPrefix(r.Prefix),
		cache.WithRedisPool(r.PoolSize, r.MinIdle, r.PoolWait),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	lc := cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(r.MemorySize),
		cache.WithLayeredMemoryTTL(r.MemoryTTL),
	)
	return lc, func() { _ = lc.Close() }, nil
}

// ProvideResilientMarketData puts rate limiting and a circuit breaker in
// front of the ClickHouse reader.
func ProvideResilientMarketData(ch *pkgch.Client, rec *metrics.Recorder, cfg *config.Config, l *applogger.Logger) (*internalrepo.ResilientMarketData, error) {
	table, err := internalrepo.TableFor(cfg.ClickHouse.BarsTable, domrepo.NormalizeTimeframe(cfg.Analysis.BarInterval))
	if err != nil {
		return nil, err
	}
	base := internalrepo.NewCHMarketData(ch, table, l)
	base.SetMetrics(rec)

	p := cfg.Provider
	return internalrepo.NewResilientMarketData(base, p.RatePerSec, p.Burst, internalrepo.BreakerConfig{
		MaxRequests:         p.Breaker.MaxRequests,
		Interval:            p.Breaker.Interval,
		Timeout:             p.Breaker.Timeout,
		ConsecutiveFailures: p.Breaker.ConsecutiveFailures,
	}, l), nil
}

// ProvideMarketData serves series through the cache before the resilient reader.
func ProvideMarketData(r *internalrepo.ResilientMarketData, c cache.Service, cfg *config.Config, l *applogger.Logger) domrepo.MarketDataProvider {
	return internalrepo.NewCachedMarketData(r, c, cfg.Redis.SeriesTTL, l)
}

// ProvideUniverse ranks instruments by traded value in the bars table.
func ProvideUniverse(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) (domrepo.UniverseSource, error) {
	table, err := internalrepo.TableFor(cfg.ClickHouse.BarsTable, domrepo.NormalizeTimeframe(cfg.Analysis.BarInterval))
	if err != nil {
		return nil, err
	}
	return internalrepo.NewCHUniverse(ch, table, cfg.Analysis.UniverseWindow, l), nil
}

func ProvideResultStore(db *sqlx.DB, cfg *config.Config, l *applogger.Logger) domrepo.ResultStore {
	return internalrepo.NewPGResultStore(db, cfg.Postgres.QueryTimeout, l)
}

// ProvideEventPublisher returns nil when kafka is disabled; the batch engine
// then publishes nothing.
func ProvideEventPublisher(cfg *config.Config) (domrepo.EventPublisher, func(), error) {
	k := cfg.Kafka
	if !k.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithProducerConfig(k.Producer),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := internalrepo.NewKafkaEventPublisher(producer, k.Topics.Consensus, k.Topics.Batches)
	return pub, func() { _ = pub.Close() }, nil
}

func ProvideRegistry() (*strategy.Registry, error) {
	return strategy.NewDefaultRegistry()
}

func ProvideConsensusEngine(cfg *config.Config) (*consensus.Engine, error) {
	th := cfg.Analysis.Thresholds
	return consensus.New(consensus.Thresholds{Strong: th.Strong, Lean: th.Lean, MinConfidence: th.MinConfidence})
}

func ProvideAnalyzer(p domrepo.MarketDataProvider, reg *strategy.Registry, eng *consensus.Engine, m domrepo.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.Analyzer {
	return usecase.NewAnalyzer(p, reg, eng, l,
		usecase.WithLookback(cfg.Analysis.Lookback),
		usecase.WithParallelStrategies(cfg.Analysis.ParallelStrategies),
		usecase.WithAnalyzerMetrics(m),
	)
}

func ProvideBatchEngine(
	a *usecase.Analyzer,
	store domrepo.ResultStore,
	universe domrepo.UniverseSource,
	pub domrepo.EventPublisher,
	m domrepo.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.BatchEngine {
	an := cfg.Analysis
	return usecase.NewBatchEngine(a, store, usecase.BatchConfig{
		Workers:       an.Workers,
		WindowDays:    an.WindowDays,
		BarStep:       domrepo.NormalizeTimeframe(an.BarInterval).Duration(),
		Strategies:    an.Strategies,
		UniverseLimit: an.UniverseLimit,
		ProgressEvery: an.ProgressEvery,
	}, l,
		usecase.WithUniverse(universe),
		usecase.WithPublisher(pub),
		usecase.WithBatchMetrics(m),
	)
}

func ProvideReportService(store domrepo.ResultStore, eng *consensus.Engine) *usecase.ReportService {
	return usecase.NewReportService(store, eng)
}

func ProvideRetentionJob(store domrepo.ResultStore, m domrepo.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.RetentionJob {
	return usecase.NewRetentionJob(store, cfg.Retention.Horizon, l, m)
}

func ProvideHTTPHandler(a *usecase.Analyzer, be *usecase.BatchEngine, rs *usecase.ReportService, cfg *config.Config, l *applogger.Logger) *api.AnalysisEchoHandler {
	return api.NewAnalysisEchoHandler(l, a, be, rs,
		api.WithStreamInterval(cfg.Server.StreamInterval),
		api.WithBarStep(domrepo.NormalizeTimeframe(cfg.Analysis.BarInterval).Duration()),
	)
}

// ProvideKafkaConsumer returns nil unless the request consumer is enabled.
func ProvideKafkaConsumer(be *usecase.BatchEngine, rec *metrics.Recorder, cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	k := cfg.Kafka
	if !k.Enabled || !k.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(k.Brokers),
		pkgkafka.WithConsumerConfig(k.Consumer),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerLogger(l)
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.LoggingHook(l, 2*time.Second),
		pkgkafka.HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, _ error) {
			rec.RecordError("batch_request")
		}},
	))
	consumer.RegisterHandler(usecase.NewBatchRequestHandler(k.Topics.Requests, be, l))
	return consumer, nil
}

// ProvideServices bundles the analysis services used by the one-shot CLI
// commands.
func ProvideServices(a *usecase.Analyzer, be *usecase.BatchEngine, rs *usecase.ReportService, rj *usecase.RetentionJob, l *applogger.Logger) *Services {
	return &Services{Analyzer: a, Batches: be, Reports: rs, Retention: rj, Logger: l}
}

// ProvideApp creates the long-running server. /healthz reports the result
// store and the market data breaker.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	rec *metrics.Recorder,
	h *api.AnalysisEchoHandler,
	be *usecase.BatchEngine,
	rj *usecase.RetentionJob,
	consumer *pkgkafka.Consumer,
	md *internalrepo.ResilientMarketData,
	store domrepo.ResultStore,
) *server.App {
	return server.New(cfg, l, h, be,
		server.WithMetrics(rec),
		server.WithRetention(rj),
		server.WithConsumer(consumer),
		server.WithHealthChecks(
			xhttp.HealthCheck{Name: "result_store", Check: store.Health},
			xhttp.HealthCheck{Name: "market_data", Check: md.Health},
		),
	)
}

// Services is the non-HTTP surface of the application.
type Services struct {
	Analyzer  *usecase.Analyzer
	Batches   *usecase.BatchEngine
	Reports   *usecase.ReportService
	Retention *usecase.RetentionJob
	Logger    *applogger.Logger
}
