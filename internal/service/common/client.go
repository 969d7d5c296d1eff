//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	api "github.com/shopfloor/umpire/internal/api/grpc/umpire"
	"github.com/shopfloor/umpire/internal/config"
)

// DefaultMaxMessageSize bounds a single RPC message. Resource uploads carry
// whole payload files, so this is far above the gRPC default of 4 MiB.
const DefaultMaxMessageSize = 512 << 20

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// dialSettings collects the tunable connection knobs.
type dialSettings struct {
	callTimeout    time.Duration
	maxMessageSize int
}

// Option configures client behaviour.
type Option func(*dialSettings)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(s *dialSettings) {
		if timeout > 0 {
			s.callTimeout = timeout
		}
	}
}

// WithMaxMessageSize bounds send/recv message sizes.
func WithMaxMessageSize(size int) Option {
	return func(s *dialSettings) {
		if size > 0 {
			s.maxMessageSize = size
		}
	}
}

// Dial establishes a gRPC connection to the umpire server.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy until native TLS is added.
func Dial(_ context.Context, address string, opts ...Option) (*api.Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	settings := &dialSettings{
		callTimeout:    config.DefaultTimeout,
		maxMessageSize: DefaultMaxMessageSize,
	}

	for _, opt := range opts {
		opt(settings)
	}

	client, err := api.Dial(address, api.DialOptions{
		CallTimeout: settings.callTimeout,
		MaxMsgBytes: settings.maxMessageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("dial umpire server: %w", err)
	}

	return client, nil
}
