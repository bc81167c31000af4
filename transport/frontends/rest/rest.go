package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jrife/overworked/actor"
	"github.com/jrife/overworked/transport"
	"github.com/jrife/overworked/transport/frontends"
	"github.com/jrife/overworked/utils/log"
	"github.com/jrife/overworked/utils/uuid"
	"go.uber.org/zap"
)

const (
	// RequestIDHeader carries the request id in both directions
	RequestIDHeader = "X-Request-Id"
)

var _ frontends.Frontend = (*Frontend)(nil)
var _ http.Handler = (*Frontend)(nil)

// Frontend is an implementation of
// Frontend for plain HTTP. Every path is routed:
// "GET /{N}" churns the actor and everything
// else is passed through to it.
type Frontend struct {
	server          transport.Server
	logger          *zap.Logger
	shutdownTimeout time.Duration
	mu              sync.Mutex
	httpServer      *http.Server
}

// Init initializes the frontend
func (frontend *Frontend) Init(options frontends.Options) error {
	if options.Server == nil {
		return fmt.Errorf("a server is required")
	}

	frontend.server = options.Server
	frontend.logger = log.OrNop(options.Logger).With(zap.String("frontend", "rest"))
	frontend.shutdownTimeout = options.ShutdownTimeout
	frontend.httpServer = &http.Server{
		Handler:           frontend,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return nil
}

// Listen accepts connections from this listener
func (frontend *Frontend) Listen(listener net.Listener) error {
	frontend.logger.Info("listening", zap.String("address", listener.Addr().String()))

	if err := frontend.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("could not serve HTTP: %w", err)
	}

	return nil
}

// Stop stops accepting connections from listeners and causes
// all calls to Listen to return. Requests in progress get up to
// the shutdown timeout to finish.
func (frontend *Frontend) Stop() error {
	frontend.mu.Lock()
	defer frontend.mu.Unlock()

	ctx := context.Background()

	if frontend.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, frontend.shutdownTimeout)
		defer cancel()
	}

	if err := frontend.httpServer.Shutdown(ctx); err != nil {
		frontend.logger.Warn("graceful shutdown did not finish, closing connections", zap.Error(err))

		return frontend.httpServer.Close()
	}

	return nil
}

// ServeHTTP implements http.Handler
func (frontend *Frontend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.RequestID(r.Header.Get(RequestIDHeader))
	ctx := log.WithFields(r.Context(), zap.String("request_id", requestID))
	logger := log.WithContext(ctx, frontend.logger)
	start := time.Now()

	// Route on the path as it was sent. "/%31" is not "/1".
	path := r.URL.EscapedPath()

	w.Header().Set(RequestIDHeader, requestID)

	response, err := frontend.server.Route(ctx, &actor.Request{Method: r.Method, Path: path})

	if err != nil {
		status := transport.HTTPStatus(err)

		if status >= http.StatusInternalServerError {
			logger.Warn("request failed", zap.String("path", path), zap.Int("status", status), zap.Error(err))
		}

		writeText(w, status, []byte(transport.ErrorBody(err)))

		return
	}

	logger.Debug("request complete",
		zap.String("path", path),
		zap.Int("status", response.Status),
		zap.Duration("took", time.Since(start)),
	)

	writeText(w, response.Status, response.Body)
}

func writeText(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}
