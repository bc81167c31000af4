package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jrife/overworked/actor"
	"github.com/jrife/overworked/transport"
	"github.com/jrife/overworked/transport/frontends"
	"github.com/jrife/overworked/utils/log"
	"github.com/jrife/overworked/utils/uuid"
	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ServiceName is the full name of the router service
	ServiceName = "overworked.Router"
	// RouteMethod is the full method name of Route
	RouteMethod = "/" + ServiceName + "/Route"
	// RequestIDKey is the metadata key carrying the request id
	// in both directions
	RequestIDKey = "x-request-id"
)

// RouterServer is the server API for the router service.
// Route takes a request path and returns the response body.
type RouterServer interface {
	Route(ctx context.Context, path *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
}

// ServiceDesc describes the router service. It uses the well
// known wrapper types so that no generated code is needed on
// either side of the connection.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RouterServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Route",
			Handler:    routeHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

func routeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)

	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(RouterServer).Route(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: RouteMethod,
	}

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RouterServer).Route(ctx, req.(*wrapperspb.StringValue))
	}

	return interceptor(ctx, in, info, handler)
}

var _ frontends.Frontend = (*Frontend)(nil)
var _ RouterServer = (*Frontend)(nil)

// Frontend is an implementation of
// Frontend for the gRPC protocol
type Frontend struct {
	server          transport.Server
	identity        string
	logger          *zap.Logger
	shutdownTimeout time.Duration
	grpcServer      *grpc.Server
	healthServer    *health.Server
}

// Init initializes the frontend
func (frontend *Frontend) Init(options frontends.Options) error {
	if options.Server == nil {
		return fmt.Errorf("a server is required")
	}

	frontend.server = options.Server
	frontend.logger = log.OrNop(options.Logger).With(zap.String("frontend", "grpc"))
	frontend.shutdownTimeout = options.ShutdownTimeout

	if identified, ok := options.Server.(interface{ Identity() string }); ok {
		frontend.identity = identified.Identity()
	}

	frontend.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(frontend.requestID))
	frontend.healthServer = health.NewServer()

	frontend.grpcServer.RegisterService(&ServiceDesc, frontend)
	grpc_health_v1.RegisterHealthServer(frontend.grpcServer, frontend.healthServer)
	frontend.healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return nil
}

// Listen accepts connections from this listener
func (frontend *Frontend) Listen(listener net.Listener) error {
	frontend.logger.Info("listening", zap.String("address", listener.Addr().String()))

	if err := frontend.grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("could not serve gRPC: %w", err)
	}

	return nil
}

// Stop stops accepting connections from listeners and causes
// all calls to Listen to return. RPCs in progress get up to
// the shutdown timeout to finish.
func (frontend *Frontend) Stop() error {
	frontend.healthServer.Shutdown()

	if frontend.shutdownTimeout <= 0 {
		frontend.grpcServer.GracefulStop()

		return nil
	}

	stopped := make(chan struct{})

	go func() {
		frontend.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(frontend.shutdownTimeout):
		frontend.logger.Warn("graceful shutdown did not finish, closing connections")
		frontend.grpcServer.Stop()
	}

	return nil
}

// Route implements RouterServer
func (frontend *Frontend) Route(ctx context.Context, path *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	response, err := frontend.server.Route(ctx, actor.NewRequest(path.GetValue()))

	if err != nil {
		return nil, frontend.status(path.GetValue(), err)
	}

	return wrapperspb.Bytes(response.Body), nil
}

// status converts an error from the router into a gRPC status
// that names the actor and the path that failed
func (frontend *Frontend) status(path string, err error) error {
	st := status.New(transport.Code(err), transport.ErrorBody(err))
	detailed, detailErr := st.WithDetails(&errdetails.ResourceInfo{
		ResourceType: "actor",
		ResourceName: frontend.identity,
		Description:  path,
	})

	if detailErr != nil {
		return st.Err()
	}

	return detailed.Err()
}

func (frontend *Frontend) requestID(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	given := ""

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(RequestIDKey); len(values) > 0 {
			given = values[0]
		}
	}

	requestID := uuid.RequestID(given)
	ctx = log.WithFields(ctx, zap.String("request_id", requestID))
	logger := log.WithContext(ctx, frontend.logger)
	start := time.Now()

	if err := grpc.SetHeader(ctx, metadata.Pairs(RequestIDKey, requestID)); err != nil {
		logger.Debug("could not set request id header", zap.Error(err))
	}

	resp, err := handler(ctx, req)

	if err != nil {
		code := status.Code(err)
		logger.Warn("rpc failed", zap.String("method", info.FullMethod), zap.Stringer("code", code), zap.Error(err))

		return resp, err
	}

	logger.Debug("rpc complete", zap.String("method", info.FullMethod), zap.Duration("took", time.Since(start)))

	return resp, nil
}
