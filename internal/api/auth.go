package api

import (
	"context"
	"crypto/subtle"
	"slices"
	"strings"

	"gprbooking/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	permReadAvailability  = "read:availability"
	permReadServices      = "read:services"
	clientKeyUnknown      = "unknown"
)

var methodPermissions = map[string]string{
	methodCheckAvailability: permReadAvailability,
	methodListServices:      permReadServices,
}

// AuthInterceptor guards the gRPC API used by internal tools with key pairs and per-client limits.
type AuthInterceptor struct {
	enabled     bool
	keyHeader   string
	extraHeader string
	clients     map[string]config.APIClientKey
	limiter     *rateLimiter
}

func NewAuthInterceptor(cfg *config.APIConfig) *AuthInterceptor {
	clients := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		clients[k.Key] = k
	}

	return &AuthInterceptor{
		enabled:     cfg.Auth.Enabled,
		keyHeader:   headerName(cfg.Auth.HeaderAPIKey, apiKeyHeaderDefault),
		extraHeader: headerName(cfg.Auth.HeaderExtra, apiExtraHeaderDefault),
		clients:     clients,
		limiter:     newRateLimiter(cfg.RateLimit),
	}
}

// Unary checks keys when auth is on, then applies the per-client limit:
// per API key for authenticated callers, per peer address otherwise.
// Health checks bypass both.
func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if info.FullMethod == healthMethod {
			return handler(ctx, req)
		}

		key := peerAddr(ctx)
		if a.enabled {
			md, _ := metadata.FromIncomingContext(ctx)
			client, err := a.authenticate(md)
			if err != nil {
				return nil, err
			}
			if !client.allows(info.FullMethod) {
				return nil, status.Error(codes.PermissionDenied, "permission denied")
			}
			key = "key:" + client.Key
		}

		if !a.limiter.allow(key) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

func headerName(configured, fallback string) string {
	if h := strings.ToLower(strings.TrimSpace(configured)); h != "" {
		return h
	}
	return fallback
}

type apiClient config.APIClientKey

func (a *AuthInterceptor) authenticate(md metadata.MD) (apiClient, error) {
	apiKey := first(md.Get(a.keyHeader))
	extra := first(md.Get(a.extraHeader))
	if apiKey == "" || extra == "" {
		return apiClient{}, status.Error(codes.Unauthenticated, "missing api key headers")
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return apiClient{}, status.Error(codes.Unauthenticated, "invalid api key")
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return apiClient{}, status.Error(codes.Unauthenticated, "invalid extra header")
	}
	return apiClient(client), nil
}

// allows treats an empty permission list as allow-all.
func (c apiClient) allows(fullMethod string) bool {
	required, ok := methodPermissions[fullMethod]
	if !ok || len(c.Permissions) == 0 {
		return true
	}
	return slices.ContainsFunc(c.Permissions, func(p string) bool { return strings.TrimSpace(p) == required })
}
