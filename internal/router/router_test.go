package router

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/registry"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestView(t *testing.T, now *time.Time, records ...registry.InstanceRecord) *registry.View {
	t.Helper()

	v := registry.NewView(
		registry.WithClock(func() time.Time { return *now }),
		registry.WithHeartbeatTTL(90*time.Second),
	)
	v.Apply("static", records)
	return v
}

func instances(service string, n int) []registry.InstanceRecord {
	out := make([]registry.InstanceRecord, n)
	for i := range out {
		out[i] = registry.InstanceRecord{
			InstanceID:  fmt.Sprintf("%s-%d", service, i+1),
			ServiceName: service,
			Host:        "127.0.0.1",
			Port:        8081 + i,
		}
	}
	return out
}

func TestRuleSet_ResolveRoute(t *testing.T) {
	t.Parallel()

	rules, err := NewRuleSet([]config.RouteConfig{
		{PathPrefix: "/user-service", ServiceName: "user-service"},
		{PathPrefix: "/user-service/admin/", ServiceName: "admin-service"},
		{PathPrefix: "/product-service", ServiceName: "product-service", StripPrefix: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rules.Len())

	tests := []struct {
		name        string
		path        string
		wantService string
	}{
		{name: "exact prefix", path: "/user-service", wantService: "user-service"},
		{name: "nested path", path: "/user-service/users/1", wantService: "user-service"},
		{name: "longest prefix wins", path: "/user-service/admin/stats", wantService: "admin-service"},
		{name: "segment boundary", path: "/user-servicex", wantService: ""},
		{name: "no rule", path: "/nonexistent/path", wantService: ""},
		{name: "product", path: "/product-service/products", wantService: "product-service"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rule, err := rules.ResolveRoute(tt.path)
			if tt.wantService == "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, util.ErrRouteNotFound))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantService, rule.ServiceName)
		})
	}
}

func TestRuleSet_Invalid(t *testing.T) {
	t.Parallel()

	_, err := NewRuleSet([]config.RouteConfig{
		{PathPrefix: "/a", ServiceName: "a"},
		{PathPrefix: "/a/", ServiceName: "b"},
	})
	assert.Error(t, err)

	_, err = NewRuleSet([]config.RouteConfig{{PathPrefix: "/a"}})
	assert.Error(t, err)

	var nilSet *RuleSet
	_, err = nilSet.ResolveRoute("/a")
	assert.True(t, errors.Is(err, util.ErrRouteNotFound))
	assert.Zero(t, nilSet.Len())
	assert.Nil(t, nilSet.Rules())
}

func TestRule_RewritePath(t *testing.T) {
	t.Parallel()

	strip := &Rule{PathPrefix: "/product-service", StripPrefix: true}
	assert.Equal(t, "/products/1", strip.RewritePath("/product-service/products/1"))
	assert.Equal(t, "/", strip.RewritePath("/product-service"))

	keep := &Rule{PathPrefix: "/user-service"}
	assert.Equal(t, "/user-service/users", keep.RewritePath("/user-service/users"))

	root := &Rule{PathPrefix: "/", StripPrefix: true}
	assert.Equal(t, "/x", root.RewritePath("/x"))
}

func TestRouter_RoundRobinDistribution(t *testing.T) {
	t.Parallel()

	now := testNow
	r := New(newTestView(t, &now, instances("user-service", 3)...), WithClock(func() time.Time { return now }))

	counts := map[string]int{}
	for i := 0; i < 30; i++ {
		inst, err := r.PickInstance("user-service")
		require.NoError(t, err)
		counts[inst.ID]++
	}

	assert.Equal(t, map[string]int{
		"user-service-1": 10,
		"user-service-2": 10,
		"user-service-3": 10,
	}, counts)
}

func TestRouter_ConcurrentPicksStayBalanced(t *testing.T) {
	t.Parallel()

	now := testNow
	r := New(newTestView(t, &now, instances("user-service", 3)...), WithClock(func() time.Time { return now }))

	var mu sync.Mutex
	counts := map[string]int{}
	var wg sync.WaitGroup
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst, err := r.PickInstance("user-service")
			if err != nil {
				return
			}
			mu.Lock()
			counts[inst.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for id, n := range counts {
		assert.Equal(t, 100, n, id)
	}
}

func TestRouter_ExpiredHeartbeatNeverPicked(t *testing.T) {
	t.Parallel()

	now := testNow
	records := instances("user-service", 3)
	records[1].LastHeartbeatAt = testNow.Add(-80 * time.Second)
	r := New(newTestView(t, &now, records...), WithClock(func() time.Time { return now }))

	// Once the TTL passes for user-service-2 it is skipped without a sweep.
	now = testNow.Add(11 * time.Second)
	for i := 0; i < 20; i++ {
		inst, err := r.PickInstance("user-service")
		require.NoError(t, err)
		assert.NotEqual(t, "user-service-2", inst.ID)
	}
}

func TestRouter_Exclude(t *testing.T) {
	t.Parallel()

	now := testNow
	r := New(newTestView(t, &now, instances("user-service", 2)...), WithClock(func() time.Time { return now }))

	for i := 0; i < 5; i++ {
		inst, err := r.PickInstance("user-service", "user-service-1")
		require.NoError(t, err)
		assert.Equal(t, "user-service-2", inst.ID)
	}

	_, err := r.PickInstance("user-service", "user-service-1", "user-service-2")
	assert.True(t, errors.Is(err, util.ErrNoHealthyInstance))
}

func TestRouter_NoHealthyInstance(t *testing.T) {
	t.Parallel()

	now := testNow
	r := New(newTestView(t, &now, instances("user-service", 1)...), WithClock(func() time.Time { return now }))

	_, err := r.PickInstance("product-service")
	assert.True(t, errors.Is(err, util.ErrNoHealthyInstance))

	now = testNow.Add(time.Hour)
	_, err = r.PickInstance("user-service")
	assert.True(t, errors.Is(err, util.ErrNoHealthyInstance))
}

func TestRouter_StaleRegistry(t *testing.T) {
	t.Parallel()

	now := testNow
	v := registry.NewView(
		registry.WithClock(func() time.Time { return now }),
		registry.WithStalenessThreshold(time.Minute),
		registry.WithHeartbeatTTL(time.Hour),
	)
	r := New(v, WithClock(func() time.Time { return now }))

	// Nothing received yet.
	_, err := r.PickInstance("user-service")
	assert.True(t, errors.Is(err, util.ErrNoHealthyInstance))

	v.Apply("static", instances("user-service", 1))
	_, err = r.PickInstance("user-service")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = r.PickInstance("user-service")
	assert.True(t, errors.Is(err, util.ErrNoHealthyInstance))
}
