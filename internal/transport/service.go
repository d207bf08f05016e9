// Package transport exposes the handover engine over gRPC. Messages are
// google.protobuf.Struct values so no generated code is required.
package transport

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/dwell-handover/core"
	"github.com/signalsfoundry/dwell-handover/internal/logging"
	"github.com/signalsfoundry/dwell-handover/model"
)

const (
	ServiceName      = "handover.v1.MeasurementReportService"
	ReportFullMethod = "/" + ServiceName + "/Report"
	DetachFullMethod = "/" + ServiceName + "/Detach"
)

// MeasurementReportServer is the server API of the report service.
type MeasurementReportServer interface {
	Report(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Detach(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the report service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MeasurementReportServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Report", Handler: unaryHandler(ReportFullMethod, MeasurementReportServer.Report)},
		{MethodName: "Detach", Handler: unaryHandler(DetachFullMethod, MeasurementReportServer.Detach)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "handover/v1/report.proto",
}

// RegisterMeasurementReportServer registers srv on s.
func RegisterMeasurementReportServer(s grpc.ServiceRegistrar, srv MeasurementReportServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(MeasurementReportServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MeasurementReportServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MeasurementReportServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ReportService routes inbound reports to a core.Fleet.
type ReportService struct {
	fleet *core.Fleet
	log   logging.Logger
}

// NewReportService builds the service.
func NewReportService(fleet *core.Fleet, log logging.Logger) *ReportService {
	if log == nil {
		log = logging.Noop()
	}
	return &ReportService{fleet: fleet, log: log}
}

func (s *ReportService) Report(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := logging.LoggerFromContext(ctx, s.log)

	req, err := ParseReportRequest(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("handover.serving_cell_id", int(req.ServingCell)),
		attribute.Int("handover.rnti", int(req.RNTI)),
	)

	engine, err := s.fleet.Engine(ctx, req.ServingCell)
	if err != nil {
		return nil, ToStatusError(err)
	}
	a2, a4, _ := engine.MeasIDs()
	measID := req.MeasID
	if !req.HasMeasID {
		measID = a2
		if req.Kind == KindA4 {
			measID = a4
		}
	}
	if measID == a2 && !req.HasRSRQ {
		return nil, ToStatusError(fmt.Errorf("%w: rsrq is required for a2 reports", ErrInvalidRequest))
	}

	d, err := engine.ReportUeMeas(ctx, req.RNTI, model.MeasResults{
		MeasID:     measID,
		RSRQ:       req.RSRQ,
		Neighbours: req.Neighbours,
	})
	if err != nil {
		log.Warn(ctx, "report failed",
			logging.Int("serving_cell_id", int(req.ServingCell)),
			logging.Int("rnti", int(req.RNTI)),
			logging.Err(err))
		return nil, ToStatusError(err)
	}
	return responseFromDecision(d).ToStruct()
}

func (s *ReportService) Detach(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	rnti, err := requiredUint(in.GetFields(), "rnti", 0xffff)
	if err != nil {
		return nil, ToStatusError(err)
	}
	n := s.fleet.Forget(model.RNTI(rnti))
	return structpb.NewStruct(map[string]any{"cells": float64(n)})
}

// ToStatusError maps engine and decoding errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, core.ErrInvalidReport),
		errors.Is(err, core.ErrInvalidMeasurement),
		errors.Is(err, core.ErrUnknownMeasID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, core.ErrNotConfigured):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, core.ErrInvalidConfig):
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Unavailable, fmt.Sprintf("handover not executed: %v", err))
	}
}
