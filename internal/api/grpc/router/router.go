package router

import (
	"context"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/selector"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dtroode/rollcall-server/internal/api/grpc/handler"
	"github.com/dtroode/rollcall-server/internal/api/grpc/middleware"
	"github.com/dtroode/rollcall-server/internal/logger"
	"github.com/dtroode/rollcall-server/internal/model"
)

// Router represents a gRPC router for verification operations.
// It manages gRPC service registration and middleware configuration.
type Router struct {
	attendanceService handler.AttendanceService
	sessionService    handler.SessionService
	tokenManager      model.TokenManager
	contextManager    model.ContextManager
	health            *health.Server
	logger            *logger.Logger
}

// New creates new gRPC Router instance.
func New(
	attendanceService handler.AttendanceService,
	sessionService handler.SessionService,
	tokenManager model.TokenManager,
	contextManager model.ContextManager,
	logger *logger.Logger,
) *Router {
	return &Router{
		attendanceService: attendanceService,
		sessionService:    sessionService,
		tokenManager:      tokenManager,
		contextManager:    contextManager,
		health:            health.NewServer(),
		logger:            logger,
	}
}

// authRequired is true for every method except the health service.
func authRequired(_ context.Context, c interceptors.CallMeta) bool {
	return !strings.HasPrefix(c.FullMethod(), "/"+healthpb.Health_ServiceDesc.ServiceName+"/")
}

// Register registers all gRPC services and middleware.
// It sets up the gRPC server with panic recovery, request logging and authentication interceptors.
func (r *Router) Register() *grpc.Server {
	logging := middleware.NewLogging(r.logger)
	recovering := middleware.NewRecovery(r.logger)
	authenticate := middleware.NewAuthenticate(r.tokenManager, r.contextManager, r.logger)

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recovery.UnaryServerInterceptor(recovering.Options()...),
			logging.HandleGRPC,
			selector.UnaryServerInterceptor(
				auth.UnaryServerInterceptor(authenticate.AuthFunc),
				selector.MatchFunc(authRequired),
			),
		),
		grpc.ChainStreamInterceptor(
			recovery.StreamServerInterceptor(recovering.Options()...),
			selector.StreamServerInterceptor(
				auth.StreamServerInterceptor(authenticate.AuthFunc),
				selector.MatchFunc(authRequired),
			),
		),
	)
	r.registerAttendanceRoutes(s)
	r.registerSessionRoutes(s)
	healthpb.RegisterHealthServer(s, r.health)

	return s
}

// Shutdown marks every service as not serving so load balancers drain the instance.
func (r *Router) Shutdown() {
	r.health.Shutdown()
}

func (r *Router) registerAttendanceRoutes(server *grpc.Server) {
	attendanceHandler := handler.NewAttendance(r.attendanceService, r.contextManager, r.logger)
	server.RegisterService(&handler.AttendanceServiceDesc, attendanceHandler)
	r.health.SetServingStatus(handler.AttendanceServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)
}

func (r *Router) registerSessionRoutes(server *grpc.Server) {
	sessionHandler := handler.NewSession(r.sessionService, r.contextManager, r.logger)
	server.RegisterService(&handler.SessionServiceDesc, sessionHandler)
	r.health.SetServingStatus(handler.SessionServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)
}
