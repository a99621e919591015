package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"coinwatch/config"
	"coinwatch/internal/ports"
)

// WatcherService orchestrates the polling cycles: a fixed-period scheduler
// fans fetches out across all configured exchange clients, joins them, and
// hands control to the reconciler and the confirmation tracker. Failures
// are isolated per exchange: a timeout or malformed payload drops only that
// exchange's contribution for the tick, and rejected credentials disable
// only that client.
type WatcherService struct {
	cfg        *config.Config
	logger     ports.Logger
	clients    []ports.ExchangeClient
	store      ports.Store
	reconciler *Reconciler
	tracker    *Tracker

	// State fields
	mu       sync.Mutex // Protects access to state fields below
	disabled map[string]bool
	nextDue  map[string]time.Time
}

// NewWatcherService creates the application service instance.
func NewWatcherService(
	cfg *config.Config,
	logger ports.Logger,
	clients []ports.ExchangeClient,
	store ports.Store,
	sink ports.NotificationSink,
) (*WatcherService, error) {

	if cfg == nil || logger == nil || store == nil || sink == nil {
		return nil, fmt.Errorf("missing required dependencies for WatcherService")
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("at least one exchange client is required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("configuration PollInterval must be positive")
	}

	reconciler, err := NewReconciler(store, logger)
	if err != nil {
		return nil, err
	}
	tracker, err := NewTracker(store, sink, logger, cfg.HistoryRetain)
	if err != nil {
		return nil, err
	}

	return &WatcherService{
		cfg:        cfg,
		logger:     logger,
		clients:    clients,
		store:      store,
		reconciler: reconciler,
		tracker:    tracker,
		disabled:   make(map[string]bool),
		nextDue:    make(map[string]time.Time),
	}, nil
}

// Start runs the polling loop until the context is canceled or a
// termination signal arrives. In-flight fetches are abandoned on shutdown;
// uncommitted transactions are simply not applied.
func (s *WatcherService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting watcher service", map[string]interface{}{
		"exchanges":    len(s.clients),
		"pollInterval": s.cfg.PollInterval.String(),
		"baseCurrency": s.cfg.BaseCurrency,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	// First cycle fires immediately rather than one period in.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.closeClients()
			s.logger.Info(context.Background(), "Watcher service stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one fan-out/join cycle and then the confirmation pass. Each
// exchange fetch runs in its own goroutine under its own timeout; the join
// guarantees a single writer per exchange across ticks. If the cycle
// overruns the period, the next tick fires immediately.
func (s *WatcherService) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	var wg sync.WaitGroup
	now := time.Now()
	names := make([]string, 0, len(s.clients))

	for _, client := range s.clients {
		name := client.Name()
		names = append(names, name)

		s.mu.Lock()
		due := !s.disabled[name] && !now.Before(s.nextDue[name])
		if due {
			s.nextDue[name] = now.Add(s.exchangeInterval(name))
		}
		s.mu.Unlock()
		if !due {
			continue
		}

		wg.Add(1)
		go func(c ports.ExchangeClient) {
			defer wg.Done()
			s.pollExchange(ctx, c)
		}(client)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return
	}
	if err := s.tracker.Process(ctx, names); err != nil {
		s.logger.Error(ctx, err, "Confirmation pass failed")
	}
}

// pollExchange runs one exchange's fetch-normalize-reconcile pipeline.
func (s *WatcherService) pollExchange(ctx context.Context, client ports.ExchangeClient) {
	name := client.Name()

	fetchCtx, cancel := context.WithTimeout(ctx, s.exchangeTimeout(name))
	defer cancel()

	snap, err := client.GetData(fetchCtx, s.cfg.BaseCurrency)
	if err != nil {
		if ports.IsPermanent(err) {
			s.mu.Lock()
			s.disabled[name] = true
			s.mu.Unlock()
			s.logger.Error(ctx, err, "Exchange credentials rejected, disabling client until reconfigured", map[string]interface{}{
				"exchange": name,
			})
			return
		}
		// Transient: this exchange's contribution for the tick is
		// dropped, stored rows stay intact, retried next tick.
		s.logger.Warn(ctx, "Exchange fetch failed, keeping cached state", map[string]interface{}{
			"exchange": name, "error": err.Error(),
		})
		return
	}

	if err := s.reconciler.Apply(ctx, snap); err != nil {
		s.logger.Error(ctx, err, "Reconciliation failed, will retry next tick", map[string]interface{}{
			"exchange": name,
		})
		return
	}

	if snap.Total.IsPositive() {
		if err := s.store.AppendTotal(ctx, name, snap.Total, time.Now().UTC()); err != nil {
			s.logger.Error(ctx, err, "Failed to append total snapshot", map[string]interface{}{
				"exchange": name,
			})
		}
	}

	s.logger.Debug(ctx, "Exchange cycle complete", map[string]interface{}{
		"exchange": name,
		"orders":   len(snap.Orders),
		"filled":   len(snap.History),
		"total":    snap.Total.String(),
	})
}

func (s *WatcherService) exchangeConfig(name string) *config.ExchangeConfig {
	for i := range s.cfg.Exchanges {
		if s.cfg.Exchanges[i].Name == name {
			return &s.cfg.Exchanges[i]
		}
	}
	return nil
}

func (s *WatcherService) exchangeTimeout(name string) time.Duration {
	if ex := s.exchangeConfig(name); ex != nil && ex.Timeout > 0 {
		return ex.Timeout
	}
	return 5 * time.Second
}

func (s *WatcherService) exchangeInterval(name string) time.Duration {
	if ex := s.exchangeConfig(name); ex != nil && ex.PollInterval > s.cfg.PollInterval {
		return ex.PollInterval
	}
	return s.cfg.PollInterval
}

func (s *WatcherService) closeClients() {
	for _, client := range s.clients {
		if err := client.Close(); err != nil {
			s.logger.Warn(context.Background(), "Failed to close exchange client", map[string]interface{}{
				"exchange": client.Name(), "error": err.Error(),
			})
		}
	}
}
