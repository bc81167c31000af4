package frontends

import (
	"net"
	"time"

	"github.com/jrife/overworked/transport"
	"go.uber.org/zap"
)

// Options define standard options
// passed to frontends during initialization
type Options struct {
	Server transport.Server
	Logger *zap.Logger
	// ShutdownTimeout bounds how long Stop waits for requests
	// in progress before cutting them off. Zero waits forever.
	ShutdownTimeout time.Duration
}

// Frontend describes an interface
// that every frontend must implement.
type Frontend interface {
	// Init initializes the frontend. Use this
	// to pass configuration options to the frontend
	Init(options Options) error
	// Listen tells this frontend to start listening
	// using this listener. A frontend may be asked
	// to listen on different interfaces, such as a TCP
	// socket and a Unix socket. It must accept
	// one or more calls to Listen. Listen must block
	// as long as it is actively accepting connections
	// from this listener. If the listener returns an
	// error Listen must return an error and return. If
	// Listen returns as a result of Stop being called it
	// must return nil.
	Listen(listener net.Listener) error
	// Stop tells this frontend to stop processing all
	// requests and stop listening to all listeners.
	// Listeners passed to Listen are closed by the
	// time Stop returns.
	Stop() error
}
