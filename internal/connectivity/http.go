package connectivity

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"field-sync-service/internal/config"
	"field-sync-service/internal/logger"
)

// ErrNoProbeURL is returned by HTTPSignal.Probe when no URL is configured.
var ErrNoProbeURL = errors.New("connectivity: no probe url configured")

// HTTPSignal derives reachability from a health endpoint: any response
// below 500 means the network path to the backend works.
type HTTPSignal struct {
	url      string
	interval time.Duration
	client   *http.Client

	mu   sync.Mutex
	last *bool
	subs broadcaster[bool]
}

func NewHTTPSignal(cfg config.ConnectivityConfig, client *http.Client) *HTTPSignal {
	if client == nil {
		client = &http.Client{Timeout: cfg.GetTimeout()}
	}
	interval := cfg.GetInterval()
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HTTPSignal{url: cfg.ProbeURL, interval: interval, client: client}
}

func (s *HTTPSignal) Probe(ctx context.Context) (bool, error) {
	if s.url == "" {
		return false, ErrNoProbeURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return false, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError, nil
}

func (s *HTTPSignal) Subscribe(handler func(bool)) func() {
	return s.subs.add(handler)
}

// Run polls until ctx is done, notifying subscribers on every change.
func (s *HTTPSignal) Run(ctx context.Context) error {
	if s.url == "" {
		return nil
	}

	logger.Log.Info("Starting connectivity poller",
		zap.String("url", s.url),
		zap.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.poll(ctx)

		select {
		case <-ctx.Done():
			logger.Log.Info("Stopped connectivity poller")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *HTTPSignal) poll(ctx context.Context) {
	reachable, err := s.Probe(ctx)
	if err != nil {
		return
	}

	s.mu.Lock()
	changed := s.last == nil || *s.last != reachable
	s.last = &reachable
	s.mu.Unlock()

	if changed {
		s.subs.emit(reachable)
	}
}
