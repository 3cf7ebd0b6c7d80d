// Package client is an HTTP client for the allocator service, used by the
// load generator and the integration tests.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/traffic-allocator/pkg/allocation"
	"github.com/traffic-allocator/pkg/api"
	"github.com/traffic-allocator/pkg/compare"
)

type AllocatorClient struct {
	baseURL  string
	clientID string
	client   *http.Client
}

// New returns a client for the allocator at baseURL. clientID is sent as
// X-Client-ID and feeds the server-side rate limiter; empty means the server
// falls back to the remote address.
func New(baseURL, clientID string) *AllocatorClient {
	return &AllocatorClient{
		baseURL:  baseURL,
		clientID: clientID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Allocate evaluates one scenario and returns the (presentation-rounded)
// allocation result.
func (c *AllocatorClient) Allocate(req api.PlanRequest) (*allocation.Result, error) {
	var res allocation.Result
	if err := c.post("/v1/allocate", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Compare evaluates one scenario under both the baseline and the selected
// strategy and returns the comparison report.
func (c *AllocatorClient) Compare(req api.PlanRequest) (*compare.Report, error) {
	var report compare.Report
	if err := c.post("/v1/compare", req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *AllocatorClient) post(path string, req api.PlanRequest, out interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.clientID != "" {
		httpReq.Header.Set("X-Client-ID", c.clientID)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		var apiErr api.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("allocator %s: %s (status %d)", path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("allocator %s: status %d: %s", path, resp.StatusCode, string(data))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
