// Package telemetry overlays observed route metrics from Prometheus onto the
// deterministic catalog profiles. The catalog gives every provider a stable
// synthetic profile; when real traffic has flowed, observed p95 latency and
// success rate are better inputs for the planner.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/traffic-allocator/pkg/catalog"
)

type Collector struct {
	prometheusURL string
	client        *http.Client
}

type prometheusResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Value  []interface{}     `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

func NewCollector(prometheusURL string) *Collector {
	return &Collector{
		prometheusURL: prometheusURL,
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

// Overlay returns a copy of routes with observed latency and reliability
// substituted where Prometheus has data. Missing series or query failures
// leave the catalog values in place; the planner never blocks on telemetry.
func (c *Collector) Overlay(ctx context.Context, routes []catalog.RouteProfile) []catalog.RouteProfile {
	out := make([]catalog.RouteProfile, len(routes))
	copy(out, routes)

	for i := range out {
		if p95, err := c.queryP95Latency(ctx, out[i].ID); err == nil && p95 > 0 {
			out[i].LatencyP95MS = p95
		}
		if pct, err := c.querySuccessPct(ctx, out[i].ID); err == nil {
			out[i].ReliabilityPct = pct
		}
	}
	return out
}

func (c *Collector) queryP95Latency(ctx context.Context, routeID string) (int, error) {
	query := fmt.Sprintf(`histogram_quantile(0.95, rate(route_request_duration_seconds_bucket{route=%q}[5m])) * 1000`, routeID)
	value, err := c.query(ctx, query)
	if err != nil {
		return 0, err
	}
	return int(math.Round(value)), nil
}

func (c *Collector) querySuccessPct(ctx context.Context, routeID string) (float64, error) {
	query := fmt.Sprintf(`sum(rate(route_requests_total{route=%q,status="success"}[5m])) / sum(rate(route_requests_total{route=%q}[5m])) * 100`, routeID, routeID)
	value, err := c.query(ctx, query)
	if err != nil {
		return 0, err
	}
	if value > 100 {
		value = 100
	}
	if value < 0 {
		value = 0
	}
	return value, nil
}

func (c *Collector) query(ctx context.Context, query string) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v1/query?query=%s", c.prometheusURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("prometheus query failed: %s", string(body))
	}

	var result prometheusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}

	if result.Status != "success" || len(result.Data.Result) == 0 {
		return 0, fmt.Errorf("no data from prometheus")
	}

	valueStr, ok := result.Data.Result[0].Value[1].(string)
	if !ok {
		return 0, fmt.Errorf("invalid value type")
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		// histogram_quantile over an empty range returns NaN.
		return 0, fmt.Errorf("non-finite value from prometheus")
	}

	logrus.WithFields(logrus.Fields{"query": query, "value": value}).Debug("prometheus sample")
	return value, nil
}
