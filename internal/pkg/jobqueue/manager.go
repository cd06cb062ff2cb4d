package jobqueue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/repository"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/env"
)

// staleClaimAge is how long a payment event may sit claimed but unfinalized
// before the sweeper raises an operator alert. Recovery itself happens on the
// next provider redelivery; the alert exists for keys the provider stopped
// retrying.
const staleClaimAge = 15 * time.Minute

// Manager manages the global job queue and background tasks
type Manager struct {
	queue            *Queue
	staleClaimTicker *time.Ticker
	stopCh           chan struct{}
	wg               sync.WaitGroup
	mu               sync.Mutex
	running          bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := 5
		if v, err := strconv.Atoi(env.GetEnv("JOBQUEUE_WORKERS", "5")); err == nil && v > 0 {
			workerCount = v
		}

		globalManager = &Manager{
			queue:  NewQueue(workerCount),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	sweepInterval := 5 * time.Minute
	if v, err := strconv.Atoi(env.GetEnv("STALE_CLAIM_SWEEP_MINUTES", "5")); err == nil && v > 0 {
		sweepInterval = time.Duration(v) * time.Minute
	}
	m.staleClaimTicker = time.NewTicker(sweepInterval)
	m.wg.Add(1)
	go m.staleClaimWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.staleClaimTicker != nil {
		m.staleClaimTicker.Stop()
	}

	// Signal workers to stop. The channel stays set after close so a worker
	// that re-enters its select mid-shutdown still sees the closed channel;
	// Start replaces it on the next cycle.
	close(m.stopCh)
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	// Stop the job queue
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// staleClaimWorker periodically scans for payment events that were claimed
// but never finalized and raises an ops alert per stuck key.
func (m *Manager) staleClaimWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Stale claim worker stopping")
			return
		case <-m.staleClaimTicker.C:
			if err := m.sweepStaleClaimsOnce(); err != nil {
				log.Errorf("[JobQueue Manager] Stale claim sweep error: %v", err)
			}
		}
	}
}

func (m *Manager) sweepStaleClaimsOnce() error {
	if !repository.FactoryInitialized() {
		return nil
	}
	factory := repository.GetGlobalFactory()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	events, _, err := factory.GetPaymentEventRepository().List(ctx, 0, 200)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-staleClaimAge)
	for _, event := range events {
		if event.ProcessedAt != nil || event.ClaimedAt.After(cutoff) {
			continue
		}
		payload := OpsAlertJobPayload{
			Reason:      "stale_claim",
			Provider:    event.Provider,
			ExternalKey: event.ExternalKey,
			Details: map[string]interface{}{
				"claimed_at": event.ClaimedAt,
				"reclaimed":  event.Reclaimed,
			},
		}
		if _, err := m.queue.EnqueueJob(JobTypeOpsAlert, payload.ToMap()); err != nil {
			log.Errorf("[JobQueue Manager] Failed to enqueue stale claim alert for %s/%s: %v",
				event.Provider, event.ExternalKey, err)
		}
	}
	return nil
}

// RunStaleClaimSweepOnce exposes a manual trigger for a single sweep (admin use).
func (m *Manager) RunStaleClaimSweepOnce() error {
	return m.sweepStaleClaimsOnce()
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
