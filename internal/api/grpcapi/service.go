package grpcapi

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/muse-gate/internal/evaluator"
	"github.com/danielpatrickdp/muse-gate/internal/gate"
	"github.com/danielpatrickdp/muse-gate/internal/stage"
)

// #region descriptor

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "musegate.v1.GateService"

// RunGateMethod is the full method path of the single RPC.
const RunGateMethod = "/" + ServiceName + "/RunGate"

// GateServiceServer is implemented by the gate service. Request and result
// travel as google.protobuf.Struct carrying the same JSON shape as HTTP.
type GateServiceServer interface {
	RunGate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes GateService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GateServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunGate", Handler: runGateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "musegate/v1/gate.proto",
}

// RegisterGateServiceServer registers srv on s.
func RegisterGateServiceServer(s grpc.ServiceRegistrar, srv GateServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func runGateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GateServiceServer).RunGate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RunGateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GateServiceServer).RunGate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// #endregion descriptor

// #region service

// Runner runs one gate decision. *gate.Gate satisfies it.
type Runner interface {
	Run(ctx context.Context, req stage.Request) (gate.Result, error)
}

// Service adapts a Runner to GateServiceServer.
type Service struct {
	gate Runner
}

// NewService wraps a gate.
func NewService(g Runner) *Service {
	return &Service{gate: g}
}

// RunGate decodes the request struct, runs the gate and encodes the result.
func (s *Service) RunGate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req stage.Request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	kind, err := stage.ParseKind(string(req.Stage))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	req.Stage = kind

	res, err := s.gate.Run(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := toStruct(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

// toStatus maps gate errors onto gRPC codes. The evaluator kind travels in
// the message prefix so clients can recover it.
func toStatus(err error) error {
	if errors.Is(err, gate.ErrInvalidRequest) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	var ee *evaluator.Error
	if errors.As(err, &ee) {
		code := codes.Unavailable
		if ee.Kind == evaluator.KindTimeout {
			code = codes.DeadlineExceeded
		}
		return status.Error(code, ee.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// #endregion service

// #region convert

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		in = new(structpb.Struct)
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// #endregion convert
