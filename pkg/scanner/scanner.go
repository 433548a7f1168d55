// Package scanner is the single background agent driving periodic
// inspection: the sentinel scan cadence, the lineage refresh cadence, and
// the rediscovery cadence, each on its own wall-clock deadline.
package scanner

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/crypto"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/investigator"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/lineage"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/logging"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/notifier"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/orchestrator"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/repositories"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/sentinels"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/warehouse"
)

const (
	// perTableTimeout bounds all sentinel work for one table.
	perTableTimeout = 60 * time.Second

	// connectTimeout bounds connector creation.
	connectTimeout = 15 * time.Second

	// queryLogLimit caps one lineage ingest batch per connection.
	queryLogLimit = 500
)

// Config holds the scanner cadences and parallelism bound.
type Config struct {
	ScanInterval        time.Duration
	LineageInterval     time.Duration
	RediscoveryInterval time.Duration
	Workers             int
}

// Scanner drives the periodic pipeline.
type Scanner struct {
	cfg          Config
	connections  repositories.ConnectionRepository
	tables       repositories.TableRepository
	schema       *sentinels.SchemaSentinel
	freshness    *sentinels.FreshnessSentinel
	orchestrator *orchestrator.Orchestrator
	lineage      *lineage.Service
	investigator *investigator.Investigator
	encryptor    *crypto.CredentialEncryptor
	events       *notifier.Notifier
	logger       *zap.Logger

	trigger chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	now     func() time.Time
}

// New creates a Scanner.
func New(
	cfg Config,
	connections repositories.ConnectionRepository,
	tables repositories.TableRepository,
	schemaSentinel *sentinels.SchemaSentinel,
	freshnessSentinel *sentinels.FreshnessSentinel,
	orch *orchestrator.Orchestrator,
	lineageSvc *lineage.Service,
	inv *investigator.Investigator,
	encryptor *crypto.CredentialEncryptor,
	events *notifier.Notifier,
	logger *zap.Logger,
) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Scanner{
		cfg:          cfg,
		connections:  connections,
		tables:       tables,
		schema:       schemaSentinel,
		freshness:    freshnessSentinel,
		orchestrator: orch,
		lineage:      lineageSvc,
		investigator: inv,
		encryptor:    encryptor,
		events:       events,
		logger:       logger.Named("scanner"),
		trigger:      make(chan struct{}, 1),
		done:         make(chan struct{}),
		now:          time.Now,
	}
}

// Start launches the background loop. Call Stop to shut it down.
func (s *Scanner) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	go s.run(ctx)
	s.logger.Info("scanner started",
		zap.Duration("scan_interval", s.cfg.ScanInterval),
		zap.Duration("lineage_interval", s.cfg.LineageInterval),
		zap.Duration("rediscovery_interval", s.cfg.RediscoveryInterval),
		zap.Int("workers", s.cfg.Workers))
}

// Stop shuts the loop down and waits for the current cycle to finish.
func (s *Scanner) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		<-s.done
		s.logger.Info("scanner stopped")
	})
}

// TriggerScan requests an immediate scan cycle. Non-blocking; a trigger
// while a trigger is already pending coalesces.
func (s *Scanner) TriggerScan() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// run is the deadline-driven loop. Each cadence tracks its own next
// deadline; the loop sleeps until the earliest one.
func (s *Scanner) run(ctx context.Context) {
	defer close(s.done)

	now := s.now()
	nextScan := now.Add(s.cfg.ScanInterval)
	nextLineage := now.Add(s.cfg.LineageInterval)
	nextRediscovery := now.Add(s.cfg.RediscoveryInterval)

	for {
		earliest := nextScan
		if nextLineage.Before(earliest) {
			earliest = nextLineage
		}
		if nextRediscovery.Before(earliest) {
			earliest = nextRediscovery
		}

		timer := time.NewTimer(time.Until(earliest))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.trigger:
			timer.Stop()
			s.runScanCycle(ctx)
			nextScan = s.now().Add(s.cfg.ScanInterval)
		case <-timer.C:
			now = s.now()
			if !now.Before(nextScan) {
				s.runScanCycle(ctx)
				nextScan = s.now().Add(s.cfg.ScanInterval)
			}
			if !now.Before(nextLineage) {
				s.runLineageRefresh(ctx)
				nextLineage = s.now().Add(s.cfg.LineageInterval)
			}
			if !now.Before(nextRediscovery) {
				s.runRediscovery(ctx)
				nextRediscovery = s.now().Add(s.cfg.RediscoveryInterval)
			}
		}
	}
}

// forEachActiveConnection runs fn with a connector per active connection,
// skipping connections that fail to decrypt or connect, and closes every
// connector it opens.
func (s *Scanner) forEachActiveConnection(ctx context.Context, fn func(conn *models.Connection, wc warehouse.Connector)) {
	connections, uris, err := s.connections.ListActive(ctx)
	if err != nil {
		s.logger.Error("failed to list active connections", zap.Error(err))
		return
	}

	for i, conn := range connections {
		uri, err := s.encryptor.Decrypt(uris[i])
		if err != nil {
			s.logger.Error("failed to decrypt connection URI",
				zap.String("connection", conn.Name), zap.Error(err))
			continue
		}

		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		wc, err := warehouse.NewConnector(connectCtx, conn.Dialect, uri, s.logger)
		cancel()
		if err != nil {
			s.logger.Error("failed to connect to warehouse",
				zap.String("connection", conn.Name),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}

		fn(conn, wc)
		if err := wc.Close(); err != nil {
			s.logger.Warn("failed to close connector",
				zap.String("connection", conn.Name), zap.Error(err))
		}
	}
}

// runScanCycle inspects every monitored table of every active connection.
// Tables run in parallel up to the worker bound; all sentinel work for one
// table is serial.
func (s *Scanner) runScanCycle(ctx context.Context) {
	start := s.now()
	tablesScanned := 0
	anomaliesFound := 0
	var mu sync.Mutex

	s.forEachActiveConnection(ctx, func(conn *models.Connection, wc warehouse.Connector) {
		tables, err := s.tables.ListByConnection(ctx, conn.ID)
		if err != nil {
			s.logger.Error("failed to list monitored tables",
				zap.String("connection", conn.Name), zap.Error(err))
			return
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Workers)
		for _, table := range tables {
			table := table
			g.Go(func() error {
				found := s.scanTable(gctx, wc, table)
				mu.Lock()
				tablesScanned++
				anomaliesFound += found
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	})

	s.events.Publish(notifier.EventScanCompleted, notifier.ScanCompletedPayload{
		TablesScanned:  tablesScanned,
		AnomaliesFound: anomaliesFound,
		DurationMs:     time.Since(start).Milliseconds(),
	})
	s.logger.Info("scan cycle completed",
		zap.Int("tables", tablesScanned),
		zap.Int("anomalies", anomaliesFound),
		zap.Duration("elapsed", time.Since(start)))
}

// scanTable runs the sentinels for one table and feeds any anomalies into
// the orchestrator. Failures are logged and skipped; they never abort the
// cycle. Returns the number of anomalies found.
func (s *Scanner) scanTable(ctx context.Context, wc warehouse.Connector, table *models.MonitoredTable) int {
	ctx, cancel := context.WithTimeout(ctx, perTableTimeout)
	defer cancel()

	var anomalies []*models.Anomaly

	if table.HasCheck(models.CheckSchema) {
		anomaly, err := s.schema.Check(ctx, wc, table)
		if err != nil {
			s.logger.Warn("schema check failed",
				zap.String("table", table.FQN()),
				zap.String("error", logging.SanitizeError(err)))
		} else if anomaly != nil {
			anomalies = append(anomalies, anomaly)
		}
	}

	if table.FreshnessEnabled() {
		anomaly, err := s.freshness.Check(ctx, wc, table)
		if err != nil {
			s.logger.Warn("freshness check failed",
				zap.String("table", table.FQN()),
				zap.String("error", logging.SanitizeError(err)))
		} else if anomaly != nil {
			anomalies = append(anomalies, anomaly)
		}
	}

	for _, anomaly := range anomalies {
		s.events.Publish(notifier.EventAnomalyDetected, notifier.AnomalyDetectedPayload{
			AnomalyID: anomaly.ID,
			Table:     table.FQN(),
			Type:      anomaly.Type,
		})
		if _, err := s.orchestrator.HandleAnomaly(ctx, anomaly); err != nil {
			s.logger.Error("failed to handle anomaly",
				zap.String("table", table.FQN()),
				zap.String("type", anomaly.Type),
				zap.Error(err))
		}
	}
	return len(anomalies)
}

// runLineageRefresh ingests each connection's query log into the lineage
// engine. Dialects without a query-history source are skipped quietly.
func (s *Scanner) runLineageRefresh(ctx context.Context) {
	since := s.now().UTC().Add(-s.cfg.LineageInterval - time.Minute)

	s.forEachActiveConnection(ctx, func(conn *models.Connection, wc warehouse.Connector) {
		entries, err := wc.ExtractQueryLog(ctx, since, queryLogLimit)
		if err != nil {
			s.logger.Debug("query log not available",
				zap.String("connection", conn.Name),
				zap.String("error", logging.SanitizeError(err)))
			return
		}
		if _, err := s.lineage.Ingest(ctx, entries); err != nil {
			s.logger.Error("lineage ingest failed",
				zap.String("connection", conn.Name), zap.Error(err))
		}
	})
}

// runRediscovery diffs each connection's warehouse against the monitored
// set and announces the delta count.
func (s *Scanner) runRediscovery(ctx context.Context) {
	s.forEachActiveConnection(ctx, func(conn *models.Connection, wc warehouse.Connector) {
		deltas, err := s.investigator.Rediscover(ctx, wc, conn)
		if err != nil {
			s.logger.Error("rediscovery failed",
				zap.String("connection", conn.Name),
				zap.String("error", logging.SanitizeError(err)))
			return
		}
		if len(deltas) > 0 {
			s.events.Publish(notifier.EventDiscoveryUpdate, notifier.DiscoveryUpdatePayload{
				ConnectionID: conn.ID,
				TotalDeltas:  len(deltas),
			})
		}
		s.logger.Info("rediscovery completed",
			zap.String("connection", conn.Name),
			zap.Int("deltas", len(deltas)))
	})
}
