package aflib

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// SampleFunc reads hardware state and reports attribute updates, typically
// via Client.SetAttribute* or an AttributeRegistry. Return an error when
// the hardware read fails.
type SampleFunc func(ctx context.Context) error

// SamplerStatus is a snapshot of a sampler's accounting.
type SamplerStatus struct {
	IsRunning           bool      `json:"is_running"`
	LastSampleTime      time.Time `json:"last_sample_time,omitempty"`
	LastSuccessTime     time.Time `json:"last_success_time,omitempty"`
	LastErrorTime       time.Time `json:"last_error_time,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalSamples        int64     `json:"total_samples"`
	TotalFailures       int64     `json:"total_failures"`
}

// SamplerOptions configures a Sampler.
type SamplerOptions struct {
	Logger Logger

	// Clock stamps the sampler's accounting (default: system clock).
	Clock Clock

	// MaxConsecutiveFailures before OnUnhealthy fires (0 = unlimited).
	MaxConsecutiveFailures int

	OnError     func(err error)
	OnUnhealthy func(failures int)

	// InitialDelay before the first sample (default: none).
	InitialDelay time.Duration
}

// Sampler runs a managed hardware sampling loop for firmware that reports
// attribute values by polling the device.
type Sampler struct {
	interval time.Duration
	sample   SampleFunc
	opts     SamplerOptions

	mu                  sync.RWMutex
	running             atomic.Bool
	lastSampleTime      time.Time
	lastSuccessTime     time.Time
	lastErrorTime       time.Time
	lastError           error
	consecutiveFailures int
	totalSamples        int64
	totalFailures       int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSampler creates a sampler with the given interval and sample function.
func NewSampler(interval time.Duration, sample SampleFunc, opts SamplerOptions) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = NewNopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = NewSystemClock()
	}
	return &Sampler{
		interval: interval,
		sample:   sample,
		opts:     opts,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sampling loop.
func (s *Sampler) Start(ctx context.Context) {
	if s.running.Swap(true) {
		return
	}
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop stops the sampling loop.
func (s *Sampler) Stop() {
	if !s.running.Swap(false) {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
}

// IsHealthy reports whether consecutive failures stay under the configured
// maximum.
func (s *Sampler) IsHealthy() bool {
	if s.opts.MaxConsecutiveFailures <= 0 {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consecutiveFailures < s.opts.MaxConsecutiveFailures
}

// Status returns a snapshot of the sampler's accounting.
func (s *Sampler) Status() SamplerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := SamplerStatus{
		IsRunning:           s.running.Load(),
		LastSampleTime:      s.lastSampleTime,
		LastSuccessTime:     s.lastSuccessTime,
		LastErrorTime:       s.lastErrorTime,
		ConsecutiveFailures: s.consecutiveFailures,
		TotalSamples:        s.totalSamples,
		TotalFailures:       s.totalFailures,
	}
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	return st
}

// SampleNow triggers an immediate sample without waiting for the next tick.
func (s *Sampler) SampleNow(ctx context.Context) {
	s.doSample(ctx)
}

func (s *Sampler) loop(ctx context.Context) {
	defer s.wg.Done()

	if s.opts.InitialDelay > 0 {
		select {
		case <-time.After(s.opts.InitialDelay):
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}

	s.doSample(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.doSample(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sampler) doSample(ctx context.Context) {
	s.mu.Lock()
	s.lastSampleTime = s.opts.Clock.Now()
	s.totalSamples++
	s.mu.Unlock()

	err := s.sample(ctx)

	s.mu.Lock()
	if err != nil {
		s.lastError = err
		s.lastErrorTime = s.opts.Clock.Now()
		s.consecutiveFailures++
		s.totalFailures++
		failures := s.consecutiveFailures
		s.mu.Unlock()

		s.opts.Logger.Error("sample failed", "err", err.Error(), "consecutive_failures", failures)
		if s.opts.OnError != nil {
			s.opts.OnError(err)
		}
		if s.opts.MaxConsecutiveFailures > 0 && failures >= s.opts.MaxConsecutiveFailures {
			if s.opts.OnUnhealthy != nil {
				s.opts.OnUnhealthy(failures)
			}
		}
		return
	}
	s.lastError = nil
	s.lastSuccessTime = s.opts.Clock.Now()
	s.consecutiveFailures = 0
	s.mu.Unlock()
}
