package registry

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// HealthState is the liveness classification of an instance.
type HealthState int32

const (
	// StateHealthy instances heartbeat within their TTL and are pickable.
	StateHealthy HealthState = iota
	// StateSuspect instances missed their TTL and are not pickable.
	StateSuspect
	// StateEvicted instances are removed from the view.
	StateEvicted
)

// String returns the string representation of the state.
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateSuspect:
		return "suspect"
	case StateEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// InstanceRecord is an instance as reported by a registry source.
type InstanceRecord struct {
	InstanceID               string    `json:"instanceId"`
	ServiceName              string    `json:"serviceName"`
	Host                     string    `json:"host"`
	Port                     int       `json:"port"`
	HeartbeatIntervalSeconds int       `json:"heartbeatIntervalSeconds,omitempty"`
	LastHeartbeatAt          time.Time `json:"lastHeartbeatAt"`
}

func (r InstanceRecord) validate() error {
	switch {
	case r.InstanceID == "":
		return errors.New("instanceId is required")
	case r.ServiceName == "":
		return errors.New("serviceName is required")
	case r.Host == "":
		return errors.New("host is required")
	case r.Port < 1 || r.Port > 65535:
		return fmt.Errorf("port %d out of range", r.Port)
	}
	return nil
}

// ServiceInstance is a backend instance held by the view. Values taken
// from a Snapshot are copies and never change.
type ServiceInstance struct {
	ID                string
	ServiceName       string
	Host              string
	Port              int
	HeartbeatInterval time.Duration
	LastHeartbeat     time.Time
	State             HealthState

	// ttl is the effective heartbeat TTL for this instance.
	ttl time.Duration
}

// Address returns host:port.
func (i ServiceInstance) Address() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

// HealthyUntil is the instant the instance stops being pickable unless a
// heartbeat arrives.
func (i ServiceInstance) HealthyUntil() time.Time {
	return i.LastHeartbeat.Add(i.ttl)
}

// Pickable reports whether the instance may receive traffic at now.
func (i ServiceInstance) Pickable(now time.Time) bool {
	return i.State == StateHealthy && !now.After(i.HealthyUntil())
}

// stateAt classifies the instance by heartbeat age.
func (i ServiceInstance) stateAt(now time.Time, grace time.Duration) HealthState {
	age := now.Sub(i.LastHeartbeat)
	switch {
	case age <= i.ttl:
		return StateHealthy
	case age <= i.ttl+grace:
		return StateSuspect
	default:
		return StateEvicted
	}
}

// effectiveTTL tolerates at least three missed heartbeats for instances
// with a slow heartbeat interval.
func effectiveTTL(heartbeatTTL, interval time.Duration) time.Duration {
	if minTTL := 3 * interval; minTTL > heartbeatTTL {
		return minTTL
	}
	return heartbeatTTL
}
