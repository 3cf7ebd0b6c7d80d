// Package api defines the wire types shared by the allocator service and its
// client. Handlers and the client stay unaware of each other's internals.
package api

// PlanRequest asks the service to evaluate one allocation scenario. The same
// shape drives /v1/allocate and /v1/compare.
type PlanRequest struct {
	StrategyID         string   `json:"strategy_id"`
	ProviderIDs        []string `json:"provider_ids"`
	FailoverProviderID string   `json:"failover_provider_id,omitempty"`
	VolumeMillions     float64  `json:"volume_millions"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
