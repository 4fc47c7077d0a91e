package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upb/integration-gateway/internal/observability"
	"github.com/upb/integration-gateway/models"
	"github.com/upb/integration-gateway/repositories"
	"go.uber.org/zap"
)

// Recorder accepts decision entries without blocking the caller
type Recorder interface {
	Record(log *models.AuditLog)
}

// AuditService writes decision entries from a buffered channel with a
// fixed pool of workers
type AuditService struct {
	auditRepo    repositories.AuditRepository
	metrics      observability.Metrics
	logger       *zap.Logger
	eventChan    chan *models.AuditLog
	workerCount  int
	bufferSize   int
	writeTimeout time.Duration
	wg           sync.WaitGroup
	started      bool
	stopped      bool
	mu           sync.RWMutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize   int           // Size of the event buffer channel
	WorkerCount  int           // Number of concurrent workers
	WriteTimeout time.Duration // Deadline for a single insert
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   10000,
		WorkerCount:  5,
		WriteTimeout: 5 * time.Second,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, metrics observability.Metrics, logger *zap.Logger, config Config) *AuditService {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.BufferSize < 0 {
		config.BufferSize = 0
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}

	return &AuditService{
		auditRepo:    auditRepo,
		metrics:      metrics,
		logger:       logger,
		eventChan:    make(chan *models.AuditLog, config.BufferSize),
		workerCount:  config.WorkerCount,
		bufferSize:   config.BufferSize,
		writeTimeout: config.WriteTimeout,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting entries and waits for pending ones to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not running")
	}
	s.stopped = true
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record queues an entry. It never blocks: when the service is not
// running or the buffer is full the entry is dropped, logged and counted.
func (s *AuditService) Record(log *models.AuditLog) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		s.drop(log, "audit service not running")
		return
	}

	select {
	case s.eventChan <- log:
	default:
		s.drop(log, "audit buffer full")
	}
}

func (s *AuditService) drop(log *models.AuditLog, reason string) {
	s.metrics.RecordAuditDropped()
	s.logger.Error("dropping audit entry",
		zap.String("reason", reason),
		zap.String("terminal_id", log.TerminalID),
		zap.String("provider", string(log.Provider)),
		zap.String("action", log.Action),
		zap.String("decision", string(log.Decision)),
		zap.String("request_id", log.RequestID))
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for log := range s.eventChan {
		if err := s.write(log); err != nil {
			s.metrics.RecordAuditWriteFailure()
			s.logger.Error("failed to write audit entry",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("terminal_id", log.TerminalID),
				zap.String("action", log.Action),
				zap.String("request_id", log.RequestID))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *AuditService) write(log *models.AuditLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}
