package ipc

import (
	"attentionguard/internal/aggregate"
	"attentionguard/internal/daemon"
	"attentionguard/internal/records"
	"attentionguard/internal/session"
)

const serviceName = "AttentionGuard"

// ReportStatsRequest carries a surface's cumulative session stats.
type ReportStatsRequest struct {
	RequestID string        `json:"request_id,omitempty"`
	SurfaceID string        `json:"surface_id"`
	Source    string        `json:"source"`
	Stats     session.Stats `json:"stats"`
}

// ReportStatsResponse returns the record as stored after the overwrite.
type ReportStatsResponse struct {
	Record records.Record `json:"record"`
}

// GetStatsRequest fetches one source's record.
type GetStatsRequest struct {
	Source string `json:"source"`
}

// GetStatsResponse reports the record, if any.
type GetStatsResponse struct {
	Found  bool           `json:"found"`
	Record records.Record `json:"record"`
}

// ListRecordsRequest lists every held record.
type ListRecordsRequest struct{}

// ListRecordsResponse contains records sorted by source.
type ListRecordsResponse struct {
	Durable bool             `json:"durable"`
	Records []records.Record `json:"records"`
}

// ResetRequest resets one source, or all when Source is empty.
type ResetRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Source    string `json:"source"`
}

// ResetResponse acknowledges a reset.
type ResetResponse struct {
	Reset bool `json:"reset"`
}

// SetPersistenceRequest selects durable or ephemeral persistence.
type SetPersistenceRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Durable   bool   `json:"durable"`
}

// SetPersistenceResponse reports the mode in effect after the call.
type SetPersistenceResponse struct {
	Durable bool   `json:"durable"`
	Backend string `json:"backend"`
}

// SurfaceActivatedRequest reports a surface becoming active or finishing
// navigation to Address.
type SurfaceActivatedRequest struct {
	RequestID string `json:"request_id,omitempty"`
	SurfaceID string `json:"surface_id"`
	Address   string `json:"address"`
}

// SourceActiveRequest announces an observation loop for Source on a surface.
type SourceActiveRequest struct {
	RequestID string `json:"request_id,omitempty"`
	SurfaceID string `json:"surface_id"`
	Source    string `json:"source"`
}

// SurfaceClosedRequest reports a surface going away.
type SurfaceClosedRequest struct {
	SurfaceID string `json:"surface_id"`
}

// SurfaceClosedResponse acknowledges a close.
type SurfaceClosedResponse struct{}

// IndicatorRequest fetches a surface's indicator.
type IndicatorRequest struct {
	SurfaceID string `json:"surface_id"`
}

// IndicatorResponse wraps an indicator.
type IndicatorResponse struct {
	Indicator aggregate.Indicator `json:"indicator"`
}

// EventsRequest reads the event hub after Since. A positive WaitMillis
// blocks until an event arrives or the wait elapses.
type EventsRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	WaitMillis int    `json:"wait_millis"`
}

// EventsResponse contains events and the cursor for the next request.
type EventsResponse struct {
	Events []aggregate.Event `json:"events"`
	Next   uint64            `json:"next"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse mirrors the daemon status.
type StatusResponse = daemon.Status
