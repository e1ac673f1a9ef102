package model

import (
	"context"
	"net"
)

// SecurityLayer opens the listener a server accepts connections on.
type SecurityLayer interface {
	Listen(protocol, addr string) (net.Listener, error)
}

// Server is a network server with an explicit lifecycle.
type Server interface {
	// Start blocks until the server stops or fails to serve.
	Start(securityLayer SecurityLayer) error
	// Stop shuts the server down, waiting for in-flight requests until ctx ends.
	Stop(ctx context.Context) error
	Address() string
}
