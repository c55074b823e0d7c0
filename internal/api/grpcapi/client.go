package grpcapi

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/muse-gate/internal/gate"
	"github.com/danielpatrickdp/muse-gate/internal/stage"
)

// #region client-struct
// Client calls a remote GateService.
type Client struct {
	conn *grpc.ClientConn
}
// #endregion client-struct

// #region constructor
// NewClient connects to a gate server. Extra dial options (e.g. a bufconn
// dialer in tests) are appended to the defaults.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}
// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
// #endregion close

// #region run-gate
// RunGate sends one decision request. Errors keep their gRPC status.
func (c *Client) RunGate(ctx context.Context, req stage.Request) (gate.Result, error) {
	in, err := toStruct(req)
	if err != nil {
		return gate.Result{}, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, RunGateMethod, in, out); err != nil {
		return gate.Result{}, err
	}
	var res gate.Result
	if err := fromStruct(out, &res); err != nil {
		return gate.Result{}, fmt.Errorf("decode result: %w", err)
	}
	return res, nil
}
// #endregion run-gate
