// Package server assembles a running process from its configuration:
// the kv driver, the actor directory, the dispatcher, the router and
// whichever frontends have an address.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jrife/overworked/actor"
	"github.com/jrife/overworked/config"
	"github.com/jrife/overworked/dispatcher"
	"github.com/jrife/overworked/router"
	"github.com/jrife/overworked/storage/kv"
	"github.com/jrife/overworked/storage/kv/plugins"
	"github.com/jrife/overworked/transport/frontends"
	"github.com/jrife/overworked/transport/frontends/grpc"
	"github.com/jrife/overworked/transport/frontends/rest"
	"github.com/jrife/overworked/utils/log"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// FrontendREST names the REST frontend
	FrontendREST = "rest"
	// FrontendGRPC names the gRPC frontend
	FrontendGRPC = "grpc"
)

type boundFrontend struct {
	name     string
	frontend frontends.Frontend
	listener net.Listener
}

// Host owns every component of a running process
type Host struct {
	logger    *zap.Logger
	injector  *kv.FaultInjector
	directory *actor.Directory
	router    *router.RequestRouter
	frontends []boundFrontend
}

// NewHost opens storage, builds the request path and binds a
// listener for each configured frontend. Nothing is served
// until Run is called.
func NewHost(config *config.Config, logger *zap.Logger) (*Host, error) {
	policy, err := dispatcher.ParsePolicy(config.Dispatcher.Policy)

	if err != nil {
		return nil, err
	}

	rootStore, err := plugins.Open(config.Storage.Driver, config.StorageOptions())

	if err != nil {
		return nil, err
	}

	logger = log.OrNop(logger)
	host := &Host{logger: logger}

	if config.Storage.Latency > 0 {
		host.injector = kv.NewFaultInjector(kv.Faults{Latency: config.Storage.Latency})
		rootStore = kv.WithFaults(rootStore, host.injector)
	}

	host.directory = actor.NewDirectory(rootStore, actor.Options{
		CallTimeout: config.Actor.CallTimeout,
		Logger:      logger,
	})
	host.router = router.New(
		host.directory,
		dispatcher.New(dispatcher.Options{
			Limit:  config.Dispatcher.Limit,
			Policy: policy,
			Logger: logger,
		}),
		router.Options{
			Identity:  config.Actor.Identity,
			MaxFanOut: config.Router.MaxFanOut,
			Logger:    logger,
		},
	)

	frontendOptions := frontends.Options{
		Server:          host.router,
		Logger:          logger,
		ShutdownTimeout: config.ShutdownTimeout,
	}

	for _, candidate := range []struct {
		name     string
		address  string
		frontend frontends.Frontend
	}{
		{name: FrontendREST, address: config.HTTP.Address, frontend: &rest.Frontend{}},
		{name: FrontendGRPC, address: config.GRPC.Address, frontend: &grpc.Frontend{}},
	} {
		if candidate.address == "" {
			continue
		}

		if err := host.bind(candidate.name, candidate.address, candidate.frontend, frontendOptions); err != nil {
			return nil, multierr.Append(err, host.Close())
		}
	}

	return host, nil
}

func (host *Host) bind(name string, address string, frontend frontends.Frontend, options frontends.Options) error {
	if err := frontend.Init(options); err != nil {
		return fmt.Errorf("could not initialize %s frontend: %w", name, err)
	}

	listener, err := net.Listen("tcp", address)

	if err != nil {
		return fmt.Errorf("could not listen on %s for %s frontend: %w", address, name, err)
	}

	host.frontends = append(host.frontends, boundFrontend{name: name, frontend: frontend, listener: listener})

	return nil
}

// Addr returns the address the named frontend is bound to,
// or nil if it is not configured
func (host *Host) Addr(name string) net.Addr {
	for _, bound := range host.frontends {
		if bound.name == name {
			return bound.listener.Addr()
		}
	}

	return nil
}

// Router returns the router every frontend sends requests to
func (host *Host) Router() *router.RequestRouter {
	return host.router
}

// Faults returns the fault injector wrapping storage, or nil
// if storage latency is not configured
func (host *Host) Faults() *kv.FaultInjector {
	return host.injector
}

// Run serves every frontend until ctx is done or one of them fails,
// then stops all of them
func (host *Host) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	for _, bound := range host.frontends {
		bound := bound
		group.Go(func() error {
			if err := bound.frontend.Listen(bound.listener); err != nil {
				return fmt.Errorf("%s frontend: %w", bound.name, err)
			}

			return nil
		})
	}

	group.Go(func() error {
		<-ctx.Done()

		host.logger.Info("stopping frontends")

		var errs error

		for _, bound := range host.frontends {
			errs = multierr.Append(errs, bound.frontend.Stop())
		}

		return errs
	})

	return group.Wait()
}

// Close closes every listener that is still open then
// closes the actors and their storage
func (host *Host) Close() error {
	var errs error

	for _, bound := range host.frontends {
		if err := bound.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierr.Append(errs, err)
		}
	}

	return multierr.Append(errs, host.directory.Close())
}
