// Package events publishes allocation decisions to NATS so downstream
// consumers (dashboards, audit feeds) can follow what the planner computed.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type Publisher struct {
	nc *nats.Conn
}

// AllocationEvent describes one engine run: which strategy was applied, over
// how many routes, and what came out. ExcludedRoute is set for failover
// simulations.
type AllocationEvent struct {
	EventType      string    `json:"event_type"`
	StrategyID     string    `json:"strategy_id"`
	RouteCount     int       `json:"route_count"`
	ExcludedRoute  string    `json:"excluded_route,omitempty"`
	VolumeMillions float64   `json:"volume_millions"`
	TotalCost      float64   `json:"total_cost"`
	AvgLatencyMS   float64   `json:"avg_latency_ms"`
	CacheHit       bool      `json:"cache_hit"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewPublisher(natsURL string) (*Publisher, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc}, nil
}

// PublishAllocation emits the event on allocation.plans, or
// allocation.plans.<strategy> when a strategy id is set. EventType is derived:
// "failover" when a route was excluded, "allocation" otherwise.
func (p *Publisher) PublishAllocation(ctx context.Context, event AllocationEvent) error {
	event.EventType = "allocation"
	if event.ExcludedRoute != "" {
		event.EventType = "failover"
	}
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	subject := "allocation.plans"
	if event.StrategyID != "" {
		subject = subject + "." + event.StrategyID
	}

	if err := p.nc.Publish(subject, data); err != nil {
		logrus.WithError(err).Warn("failed to publish allocation event")
		return err
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
