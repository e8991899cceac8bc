package api

import (
	"context"
	"encoding/json"
	"errors"

	"gprbooking/internal/availability"
	"gprbooking/internal/metrics"
	"gprbooking/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Messages travel as google.protobuf.Struct so internal tools need no generated stubs.
// CheckAvailability takes {date, time?, service?} and returns the same object the
// HTTP endpoint does; ListServices returns {services: [...]}.
const (
	AvailabilityServiceName = "gprbooking.availability.v1.AvailabilityService"
	methodCheckAvailability = "/" + AvailabilityServiceName + "/CheckAvailability"
	methodListServices      = "/" + AvailabilityServiceName + "/ListServices"
	healthMethod            = "/grpc.health.v1.Health/Check"
)

// AvailabilityServer is the server API of AvailabilityService.
type AvailabilityServer interface {
	CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListServices(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// AvailabilityServiceDesc is registered by hand in place of generated code.
var AvailabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: AvailabilityServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckAvailability", Handler: checkAvailabilityHandler},
		{MethodName: "ListServices", Handler: listServicesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gprbooking/availability/v1/availability.proto",
}

func checkAvailabilityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).CheckAvailability(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCheckAvailability}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).CheckAvailability(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listServicesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).ListServices(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListServices}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).ListServices(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// AvailabilityService answers availability queries from internal tools.
type AvailabilityService struct {
	booking *service.BookingService
	catalog *service.Catalog
}

func NewAvailabilityService(booking *service.BookingService, catalog *service.Catalog) *AvailabilityService {
	return &AvailabilityService{booking: booking, catalog: catalog}
}

func (s *AvailabilityService) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.booking.Check(ctx, stringField(req, "date"), stringField(req, "time"), stringField(req, "service"))
	if err != nil {
		if availability.IsValidation(err) {
			metrics.IncAvailabilityCheck("invalid")
		} else {
			metrics.IncAvailabilityCheck("error")
		}
		return nil, grpcError(err)
	}
	if res.Available {
		metrics.IncAvailabilityCheck("available")
	} else {
		metrics.IncAvailabilityCheck("unavailable")
	}
	return toStruct(res)
}

func (s *AvailabilityService) ListServices(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(map[string]any{"services": s.catalog.Active()})
}

func stringField(req *structpb.Struct, key string) string {
	v, ok := req.GetFields()[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// toStruct reuses the JSON contract so gRPC and HTTP responses carry identical field names.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func grpcError(err error) error {
	var ve *availability.ValidationError
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, ve.Error())
	case errors.Is(err, availability.ErrStorageUnavailable):
		return status.Error(codes.Unavailable, availability.ErrStorageUnavailable.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
