// Package providers defines the channel lookup contract of stream services.
package providers

import (
	"context"
	"errors"
)

// Error codes reported by channel lookups.
const (
	CodeChannelNotFound        = "CHANNEL_IS_NOT_FOUND"
	CodeChannelByQueryNotFound = "CHANNEL_BY_QUERY_IS_NOT_FOUND"
)

// LookupError is a coded lookup failure.
type LookupError struct {
	code string
}

func (e *LookupError) Error() string { return "providers: " + e.code }

// Code returns the machine-readable error code.
func (e *LookupError) Code() string { return e.code }

var (
	// ErrChannelNotFound reports an unknown channel id or handle.
	ErrChannelNotFound = &LookupError{code: CodeChannelNotFound}
	// ErrChannelByQueryNotFound reports a free-text search without results.
	ErrChannelByQueryNotFound = &LookupError{code: CodeChannelByQueryNotFound}
)

// IsNotFound reports either lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrChannelNotFound) || errors.Is(err, ErrChannelByQueryNotFound)
}

// Channel is a channel as reported by its service.
type Channel struct {
	ID    string
	Title string
	URL   string
}

// Service looks channels up on one streaming platform.
type Service interface {
	// ID is the stable service key stored with channels, e.g. "youtube".
	ID() string
	// Name is the display name.
	Name() string
	FindChannel(ctx context.Context, query string) (Channel, error)
}
