// SPDX-License-Identifier: MIT

// Package lifecycle manages event-mode channels: creating, updating and
// retiring virtual channels in the downstream IPTV middleware as events come
// and go.
package lifecycle

import (
	"context"
)

// RemoteChannel is a channel as the downstream middleware reports it.
type RemoteChannel struct {
	ID        string
	TVGID     string
	Name      string
	LogoURL   string
	GroupID   string
	StreamIDs []string
}

// RemoteStream is a stream the middleware can attach to channels.
type RemoteStream struct {
	ID      string
	Name    string
	Account string // m3u account label
}

// ChannelSpec is the create/update payload.
type ChannelSpec struct {
	TVGID     string
	Name      string
	LogoURL   string
	GroupID   string
	StreamIDs []string
}

// Middleware is the narrow surface the engine needs from the downstream
// system. Implementations must be safe for concurrent use.
type Middleware interface {
	ListChannels(ctx context.Context) ([]RemoteChannel, error)
	CreateChannel(ctx context.Context, spec ChannelSpec) (RemoteChannel, error)
	UpdateChannel(ctx context.Context, id string, patch ChannelSpec) (RemoteChannel, error)
	DeleteChannel(ctx context.Context, id string) error
	ListStreams(ctx context.Context, filter string) ([]RemoteStream, error)
}
