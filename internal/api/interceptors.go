package api

import (
	"context"
	"strings"
	"time"

	"gprbooking/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const requestIDMetadataKey = "x-request-id"

// LoggingUnaryInterceptor tags each call with a request id, echoes it back in
// the response header and records the outcome.
func LoggingUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "grpc").Logger()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := requestIDFromMetadata(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, requestID))

		started := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(started)

		code := status.Code(err)
		metrics.ObserveGRPC(info.FullMethod, code.String(), elapsed)

		levelFor(&log, code).
			Err(err).
			Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("peer", peerAddr(ctx)).
			Str("code", code.String()).
			Dur("duration", elapsed).
			Msg("grpc call")

		return resp, err
	}
}

func levelFor(log *zerolog.Logger, code codes.Code) *zerolog.Event {
	switch code {
	case codes.OK:
		return log.Info()
	case codes.Internal, codes.Unknown, codes.DataLoss:
		return log.Error()
	default:
		return log.Warn()
	}
}

// RecoveryUnaryInterceptor converts handler panics into codes.Internal.
func RecoveryUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if logger != nil {
				logger.Error().Interface("panic", rec).Str("method", info.FullMethod).Msg("grpc handler panic")
			}
			resp, err = nil, status.Error(codes.Internal, "internal error")
		}()
		return handler(ctx, req)
	}
}

func requestIDFromMetadata(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if id := first(md.Get(requestIDMetadataKey)); id != "" {
		return id
	}
	return uuid.NewString()
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

// first returns the first trimmed metadata value, or "".
func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
