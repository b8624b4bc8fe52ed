package ipc

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"github.com/google/uuid"

	"attentionguard/internal/aggregate"
	"attentionguard/internal/session"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// call issues method and waits for the reply or for ctx to end. An
// abandoned call is left to complete in the background.
func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	call := c.client.Go(serviceName+"."+method, req, resp, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case done := <-call.Done:
		return done.Error
	}
}

// ReportStats sends a surface's cumulative stats.
func (c *Client) ReportStats(ctx context.Context, surfaceID, sourceID string, stats session.Stats) (*ReportStatsResponse, error) {
	var resp ReportStatsResponse
	req := ReportStatsRequest{RequestID: uuid.NewString(), SurfaceID: surfaceID, Source: sourceID, Stats: stats}
	if err := c.call(ctx, "ReportStats", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetStats fetches one source's record.
func (c *Client) GetStats(ctx context.Context, sourceID string) (*GetStatsResponse, error) {
	var resp GetStatsResponse
	if err := c.call(ctx, "GetStats", GetStatsRequest{Source: sourceID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRecords fetches every held record.
func (c *Client) ListRecords(ctx context.Context) (*ListRecordsResponse, error) {
	var resp ListRecordsResponse
	if err := c.call(ctx, "ListRecords", ListRecordsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reset resets one source, or all sources when sourceID is empty.
func (c *Client) Reset(ctx context.Context, sourceID string) (*ResetResponse, error) {
	var resp ResetResponse
	if err := c.call(ctx, "Reset", ResetRequest{RequestID: uuid.NewString(), Source: sourceID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetPersistence toggles durable persistence.
func (c *Client) SetPersistence(ctx context.Context, durable bool) (*SetPersistenceResponse, error) {
	var resp SetPersistenceResponse
	if err := c.call(ctx, "SetPersistence", SetPersistenceRequest{RequestID: uuid.NewString(), Durable: durable}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SurfaceActivated reports activation or navigation of a surface.
func (c *Client) SurfaceActivated(ctx context.Context, surfaceID, address string) (aggregate.Indicator, error) {
	var resp IndicatorResponse
	err := c.call(ctx, "SurfaceActivated", SurfaceActivatedRequest{RequestID: uuid.NewString(), SurfaceID: surfaceID, Address: address}, &resp)
	return resp.Indicator, err
}

// SourceActive announces an observation loop.
func (c *Client) SourceActive(ctx context.Context, surfaceID, sourceID string) (aggregate.Indicator, error) {
	var resp IndicatorResponse
	err := c.call(ctx, "SourceActive", SourceActiveRequest{RequestID: uuid.NewString(), SurfaceID: surfaceID, Source: sourceID}, &resp)
	return resp.Indicator, err
}

// SurfaceClosed reports a closed surface.
func (c *Client) SurfaceClosed(ctx context.Context, surfaceID string) error {
	return c.call(ctx, "SurfaceClosed", SurfaceClosedRequest{SurfaceID: surfaceID}, &SurfaceClosedResponse{})
}

// Indicator fetches a surface's indicator.
func (c *Client) Indicator(ctx context.Context, surfaceID string) (aggregate.Indicator, error) {
	var resp IndicatorResponse
	err := c.call(ctx, "Indicator", IndicatorRequest{SurfaceID: surfaceID}, &resp)
	return resp.Indicator, err
}

// Events reads the daemon's event hub.
func (c *Client) Events(ctx context.Context, req EventsRequest) (*EventsResponse, error) {
	var resp EventsResponse
	if err := c.call(ctx, "Events", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(ctx, "Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reporter adapts a Client to the observation loop's reporting interfaces.
type Reporter struct {
	Client *Client
}

// ReportStats forwards stats to the daemon.
func (r Reporter) ReportStats(ctx context.Context, surfaceID, sourceID string, stats session.Stats) error {
	_, err := r.Client.ReportStats(ctx, surfaceID, sourceID, stats)
	return err
}

// SourceActive forwards a loop announcement to the daemon.
func (r Reporter) SourceActive(ctx context.Context, surfaceID, sourceID string) error {
	_, err := r.Client.SourceActive(ctx, surfaceID, sourceID)
	return err
}
