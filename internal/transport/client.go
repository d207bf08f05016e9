package transport

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/dwell-handover/model"
)

// Client calls the report service.
type Client struct {
	conn grpc.ClientConnInterface
}

// Dial opens an insecure connection to addr with client tracing enabled.
func Dial(addr string, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewClient(conn), conn, nil
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Report sends one measurement report and returns the decision.
func (c *Client) Report(ctx context.Context, req ReportRequest) (ReportResponse, error) {
	in, err := req.ToStruct()
	if err != nil {
		return ReportResponse{}, fmt.Errorf("encode report: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, ReportFullMethod, in, out); err != nil {
		return ReportResponse{}, err
	}
	return ParseReportResponse(out), nil
}

// ReportNeighbours sends an A4 report.
func (c *Client) ReportNeighbours(ctx context.Context, cell model.CellID, rnti model.RNTI, neighbours []model.NeighbourResult) (ReportResponse, error) {
	return c.Report(ctx, ReportRequest{ServingCell: cell, RNTI: rnti, Kind: KindA4, Neighbours: neighbours})
}

// ReportServing sends an A2 report.
func (c *Client) ReportServing(ctx context.Context, cell model.CellID, rnti model.RNTI, rsrq uint8) (ReportResponse, error) {
	return c.Report(ctx, ReportRequest{ServingCell: cell, RNTI: rnti, Kind: KindA2, RSRQ: rsrq})
}

// Detach removes an endpoint from every cell and returns how many knew it.
func (c *Client) Detach(ctx context.Context, rnti model.RNTI) (int, error) {
	in, err := structpb.NewStruct(map[string]any{"rnti": float64(rnti)})
	if err != nil {
		return 0, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, DetachFullMethod, in, out); err != nil {
		return 0, err
	}
	return int(out.GetFields()["cells"].GetNumberValue()), nil
}
