package registry

import (
	"context"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/config"
)

// StaticSource reports a fixed instance list from configuration. Every
// refresh counts as a heartbeat for all of them.
type StaticSource struct {
	records  []InstanceRecord
	interval time.Duration
}

// NewStaticSource creates a static source.
func NewStaticSource(instances []config.InstanceConfig, interval time.Duration) *StaticSource {
	records := make([]InstanceRecord, 0, len(instances))
	for _, inst := range instances {
		records = append(records, InstanceRecord{
			InstanceID:               inst.InstanceID,
			ServiceName:              inst.ServiceName,
			Host:                     inst.Host,
			Port:                     inst.Port,
			HeartbeatIntervalSeconds: inst.HeartbeatIntervalSeconds,
		})
	}
	return &StaticSource{records: records, interval: interval}
}

// Name implements Source.
func (s *StaticSource) Name() string {
	return config.SourceStatic
}

// Run implements Source.
func (s *StaticSource) Run(ctx context.Context, sink Sink) error {
	return poll(ctx, s.Name(), s.interval, sink, func(context.Context) ([]InstanceRecord, error) {
		out := make([]InstanceRecord, len(s.records))
		copy(out, s.records)
		return out, nil
	})
}
