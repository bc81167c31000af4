package clients

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	grpcfrontend "github.com/jrife/overworked/transport/frontends/grpc"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RouterClient describes the interface
// for clients of an overworked server.
type RouterClient interface {
	// Route sends path to the server and returns the response body
	Route(ctx context.Context, path string) ([]byte, error)
	// Churn asks the server to run init n times concurrently
	Churn(ctx context.Context, n int) ([]byte, error)
}

var _ RouterClient = (*Client)(nil)

// Client talks to the gRPC frontend
type Client struct {
	conn *grpc.ClientConn
}

// New connects to target. Connections are insecure unless
// options override the transport credentials.
func New(target string, options ...grpc.DialOption) (*Client, error) {
	options = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, options...)
	conn, err := grpc.NewClient(target, options...)

	if err != nil {
		return nil, fmt.Errorf("could not create client for %s: %w", target, err)
	}

	return &Client{conn: conn}, nil
}

// Route implements RouterClient. Errors are gRPC status errors.
func (client *Client) Route(ctx context.Context, path string) ([]byte, error) {
	out := new(wrapperspb.BytesValue)

	if err := client.conn.Invoke(ctx, grpcfrontend.RouteMethod, wrapperspb.String(path), out); err != nil {
		return nil, err
	}

	return out.GetValue(), nil
}

// Churn implements RouterClient
func (client *Client) Churn(ctx context.Context, n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.New("fan-out count must not be negative")
	}

	return client.Route(ctx, "/"+strconv.Itoa(n))
}

// Close closes the underlying connection
func (client *Client) Close() error {
	return client.conn.Close()
}

// WithRequestID attaches requestID to outgoing calls made with ctx
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, grpcfrontend.RequestIDKey, requestID)
}

// ResourceInfo returns the resource a failed call was aimed at,
// or nil if err carries none
func ResourceInfo(err error) *errdetails.ResourceInfo {
	st, ok := status.FromError(err)

	if !ok {
		return nil
	}

	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ResourceInfo); ok {
			return info
		}
	}

	return nil
}
