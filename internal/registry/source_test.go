package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgegw/internal/config"
)

type recordingSink struct {
	mu      sync.Mutex
	applied [][]InstanceRecord
	errs    []error
}

func (s *recordingSink) Apply(_ string, records []InstanceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, records)
}

func (s *recordingSink) ReportError(_ string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *recordingSink) applyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.applied)
}

func (s *recordingSink) errCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

func (s *recordingSink) last() []InstanceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.applied) == 0 {
		return nil
	}
	return s.applied[len(s.applied)-1]
}

func runSource(t *testing.T, src Source, sink Sink) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = src.Run(ctx, sink)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestStaticSource(t *testing.T) {
	t.Parallel()

	src := NewStaticSource([]config.InstanceConfig{
		{InstanceID: "u1", ServiceName: "user-service", Host: "127.0.0.1", Port: 8081, HeartbeatIntervalSeconds: 30},
	}, 10*time.Millisecond)
	assert.Equal(t, "static", src.Name())

	sink := &recordingSink{}
	runSource(t, src, sink)

	assert.Eventually(t, func() bool { return sink.applyCount() >= 2 }, time.Second, 5*time.Millisecond)
	require.Len(t, sink.last(), 1)
	assert.Equal(t, InstanceRecord{
		InstanceID:               "u1",
		ServiceName:              "user-service",
		Host:                     "127.0.0.1",
		Port:                     8081,
		HeartbeatIntervalSeconds: 30,
	}, sink.last()[0])
}

func TestHTTPSource(t *testing.T) {
	t.Parallel()

	heartbeat := testNow.Add(-5 * time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]InstanceRecord{
			{InstanceID: "u1", ServiceName: "user-service", Host: "10.0.0.1", Port: 8081, LastHeartbeatAt: heartbeat},
		})
	}))
	defer server.Close()

	sink := &recordingSink{}
	runSource(t, NewHTTPSource(server.URL, time.Hour), sink)

	assert.Eventually(t, func() bool { return sink.applyCount() == 1 }, time.Second, 5*time.Millisecond)
	got := sink.last()
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].InstanceID)
	assert.True(t, heartbeat.Equal(got[0].LastHeartbeatAt))
}

func TestHTTPSource_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "bad status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "bad body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(tt.handler)
			defer server.Close()

			sink := &recordingSink{}
			runSource(t, NewHTTPSource(server.URL, time.Hour), sink)

			assert.Eventually(t, func() bool { return sink.errCount() == 1 }, time.Second, 5*time.Millisecond)
			assert.Zero(t, sink.applyCount())
		})
	}
}

func newFakeConsul(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health/state/any", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("index") != "" {
			// Emulate a short blocking query.
			select {
			case <-r.Context().Done():
				return
			case <-time.After(20 * time.Millisecond):
			}
		}
		w.Header().Set("X-Consul-Index", "7")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/v1/health/service/user-service", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("passing"))
		w.Header().Set("X-Consul-Index", "7")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"Node":{"Node":"n1","Address":"10.0.0.5"},
			 "Service":{"ID":"user-1","Service":"user-service","Address":"","Port":8081,
			            "Meta":{"heartbeatIntervalSeconds":"15"}}},
			{"Node":{"Node":"n2","Address":"10.0.0.6"},
			 "Service":{"ID":"user-2","Service":"user-service","Address":"10.1.0.6","Port":8082}}
		]`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestConsulSource(t *testing.T) {
	t.Parallel()

	server := newFakeConsul(t)

	src, err := NewConsulSource(ConsulConfig{
		Address:  server.URL,
		WaitTime: time.Second,
		Services: []string{"user-service"},
	})
	require.NoError(t, err)
	assert.Equal(t, "consul", src.Name())

	sink := &recordingSink{}
	runSource(t, src, sink)

	assert.Eventually(t, func() bool { return sink.applyCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	got := sink.last()
	require.Len(t, got, 2)

	assert.Equal(t, "user-1", got[0].InstanceID)
	assert.Equal(t, "10.0.0.5", got[0].Host)
	assert.Equal(t, 15, got[0].HeartbeatIntervalSeconds)
	assert.False(t, got[0].LastHeartbeatAt.IsZero())

	assert.Equal(t, "user-2", got[1].InstanceID)
	assert.Equal(t, "10.1.0.6", got[1].Host)
	assert.Equal(t, 8082, got[1].Port)
}

func TestConsulSource_Unreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	src, err := NewConsulSource(ConsulConfig{Address: addr, Services: []string{"user-service"}})
	require.NoError(t, err)

	sink := &recordingSink{}
	runSource(t, src, sink)

	assert.Eventually(t, func() bool { return sink.errCount() >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, sink.applyCount())
}

func TestNewSource(t *testing.T) {
	t.Parallel()

	routes := []config.RouteConfig{
		{PathPrefix: "/user-service", ServiceName: "user-service"},
		{PathPrefix: "/users", ServiceName: "user-service"},
		{PathPrefix: "/product-service", ServiceName: "product-service"},
	}

	src, err := NewSource(config.RegistryConfig{Source: config.SourceStatic}, routes, nil)
	require.NoError(t, err)
	assert.IsType(t, &StaticSource{}, src)

	src, err = NewSource(config.RegistryConfig{Source: config.SourceHTTP, HTTP: config.HTTPSourceConfig{URL: "http://registry"}}, routes, nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPSource{}, src)

	src, err = NewSource(config.RegistryConfig{Source: config.SourceConsul}, routes, nil)
	require.NoError(t, err)
	require.IsType(t, &ConsulSource{}, src)
	assert.Equal(t, []string{"user-service", "product-service"}, src.(*ConsulSource).services)

	_, err = NewSource(config.RegistryConfig{Source: "zookeeper"}, routes, nil)
	assert.Error(t, err)
}
