// Package handler implements the standard grpc.health.v1 service with a database ping and a
// policy engine probe.
package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Full method names of the unary health methods.
const (
	MethodCheck = "/grpc.health.v1.Health/Check"
	MethodList  = "/grpc.health.v1.Health/List"
)

// Pinger is used to check database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used to check that the permission policy evaluates (e.g. *engine.OPAEvaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server implements grpc.health.v1.Health for readiness/liveness.
type Server struct {
	healthpb.UnimplementedHealthServer
	pinger  Pinger
	policy  PolicyChecker
	timeout time.Duration
	// services besides "" that Check answers for
	services map[string]bool
}

// NewServer returns a new Health gRPC server. pinger and policy may be nil, in which case the
// corresponding probe is skipped. services are the names Check accepts in addition to "".
func NewServer(pinger Pinger, policy PolicyChecker, services ...string) *Server {
	known := make(map[string]bool, len(services))
	for _, s := range services {
		known[s] = true
	}
	return &Server{pinger: pinger, policy: policy, timeout: 2 * time.Second, services: known}
}

// Check returns SERVING when the database answers a ping and the policy evaluates, NOT_SERVING
// otherwise. Unknown service names get NotFound.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if name := req.GetService(); name != "" && !s.services[name] {
		return nil, status.Error(codes.NotFound, "unknown service")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			log.Warn().Err(err).Msg("health: database ping failed")
			return notServing(), nil
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			log.Warn().Err(err).Msg("health: policy check failed")
			return notServing(), nil
		}
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

func notServing() *healthpb.HealthCheckResponse {
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}
}
