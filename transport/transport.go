package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/jrife/overworked/actor"
	"github.com/jrife/overworked/router"
	"google.golang.org/grpc/codes"
)

// Server describes the interface that will be passed
// to each type of frontend. *router.RequestRouter
// implements it.
type Server interface {
	Route(ctx context.Context, request *actor.Request) (*actor.Response, error)
}

var _ Server = (*router.RequestRouter)(nil)

// HTTPStatus maps an error returned by Server.Route to an HTTP status code
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, actor.ErrInvalidPath):
		return http.StatusNotFound
	case errors.Is(err, router.ErrFanOutTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, actor.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, actor.ErrClosed), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

// Code maps an error returned by Server.Route to a gRPC status code
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, actor.ErrInvalidPath):
		return codes.NotFound
	case errors.Is(err, router.ErrFanOutTooLarge):
		return codes.InvalidArgument
	case errors.Is(err, actor.ErrTimeout):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, actor.ErrClosed):
		return codes.Unavailable
	}

	return codes.Internal
}

// ErrorBody is the description of err reported to clients. An invalid
// path is reported as exactly "Invalid path" no matter how it was wrapped.
func ErrorBody(err error) string {
	if errors.Is(err, actor.ErrInvalidPath) {
		return actor.ErrInvalidPath.Error()
	}

	return err.Error()
}
