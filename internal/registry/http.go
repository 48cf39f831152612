package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/config"
)

const (
	defaultHTTPSourceTimeout = 5 * time.Second
	maxRegistryResponseSize  = 4 << 20
)

// HTTPSource polls a JSON endpoint returning an array of InstanceRecord.
type HTTPSource struct {
	url      string
	interval time.Duration
	client   *http.Client
}

// NewHTTPSource creates a polling HTTP source.
func NewHTTPSource(url string, interval time.Duration) *HTTPSource {
	return &HTTPSource{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: defaultHTTPSourceTimeout},
	}
}

// Name implements Source.
func (s *HTTPSource) Name() string {
	return config.SourceHTTP
}

// Run implements Source.
func (s *HTTPSource) Run(ctx context.Context, sink Sink) error {
	return poll(ctx, s.Name(), s.interval, sink, s.fetch)
}

func (s *HTTPSource) fetch(ctx context.Context) ([]InstanceRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxRegistryResponseSize))
		return nil, fmt.Errorf("registry returned status %d", resp.StatusCode)
	}

	var records []InstanceRecord
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRegistryResponseSize)).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode registry response: %w", err)
	}
	return records, nil
}
