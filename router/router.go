// Package router is the front door of the service. It resolves the
// one actor every request is aimed at and decides, from the request
// path alone, whether to pass the request through to it or to churn
// it with a fan-out of init calls.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/jrife/overworked/actor"
	"github.com/jrife/overworked/dispatcher"
	"github.com/jrife/overworked/utils/log"
	"go.uber.org/zap"
)

const (
	// DefaultIdentity is the identity of the actor every request is routed to
	DefaultIdentity = "A"
)

// ErrFanOutTooLarge is returned when a fan-out asks for more
// operations than the router allows
var ErrFanOutTooLarge = errors.New("fan-out count exceeds the configured maximum")

// Options configures a RequestRouter
type Options struct {
	// Identity overrides DefaultIdentity
	Identity string
	// MaxFanOut rejects fan-outs larger than this. Zero means no maximum.
	MaxFanOut int
	Logger    *zap.Logger
}

// RequestRouter routes requests to a single, fixed actor
type RequestRouter struct {
	directory  *actor.Directory
	dispatcher *dispatcher.ConcurrentDispatcher
	options    Options
	logger     *zap.Logger
}

// New creates a RequestRouter
func New(directory *actor.Directory, dispatcher *dispatcher.ConcurrentDispatcher, options Options) *RequestRouter {
	if options.Identity == "" {
		options.Identity = DefaultIdentity
	}

	return &RequestRouter{
		directory:  directory,
		dispatcher: dispatcher,
		options:    options,
		logger:     log.OrNop(options.Logger),
	}
}

// Identity returns the identity of the actor requests are routed to
func (router *RequestRouter) Identity() string {
	return router.options.Identity
}

// Route handles one request. If the path is "/{N}" for a non-negative
// decimal N, the actor's init is called N times concurrently and the
// response body is "Churned {N}". Any failure among those calls fails
// the whole request. Every other request is forwarded to the actor
// unchanged and its response or error returned as is.
func (router *RequestRouter) Route(ctx context.Context, request *actor.Request) (*actor.Response, error) {
	target, err := router.directory.Resolve(router.options.Identity)

	if err != nil {
		return nil, fmt.Errorf("could not resolve actor %s: %w", router.options.Identity, err)
	}

	n, ok := ParseFanOut(request.Path)

	if !ok {
		return target.Fetch(ctx, request)
	}

	if router.options.MaxFanOut > 0 && n > router.options.MaxFanOut {
		return nil, fmt.Errorf("%w: %d > %d", ErrFanOutTooLarge, n, router.options.MaxFanOut)
	}

	log.WithContext(ctx, router.logger).Info("churning actor", zap.String("actor", target.Identity()), zap.Int("n", n))

	churned, err := router.dispatcher.Dispatch(ctx, n, func(ctx context.Context) error {
		_, err := target.Fetch(ctx, actor.NewRequest(actor.PathInit))

		return err
	})

	if err != nil {
		return nil, err
	}

	return &actor.Response{
		Status: http.StatusOK,
		Body:   []byte(fmt.Sprintf("Churned %d", churned)),
	}, nil
}

// ParseFanOut extracts N from a path of the form "/{N}". ok is
// false when the rest of the path is not a non-negative decimal
// integer that fits in an int.
func ParseFanOut(path string) (n int, ok bool) {
	digits := strings.TrimPrefix(path, "/")

	// A leading plus sign is allowed
	if strings.HasPrefix(digits, "+") && len(digits) > 1 {
		digits = digits[1:]
	}

	parsed, err := strconv.ParseUint(digits, 10, strconv.IntSize-1)

	if err != nil {
		return 0, false
	}

	return int(parsed), true
}
