// Package platform abstracts the host facilities the monitor listens to:
// online/offline transitions, link-type changes and the current online flag.
package platform

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by Watch calls for capabilities the platform
// does not provide.
var ErrUnsupported = errors.New("platform capability unsupported")

// Capabilities describes which notifications a platform can deliver.
type Capabilities struct {
	OnlineEvents   bool `json:"online_events"`
	LinkTypeEvents bool `json:"link_type_events"`
	OnlineFlag     bool `json:"online_flag"`
}

// Any reports whether at least one capability is present.
func (c Capabilities) Any() bool {
	return c.OnlineEvents || c.LinkTypeEvents || c.OnlineFlag
}

// Platform is the host collaborator queried by the monitor.
//
// Watch channels carry bare notifications; receivers read IsOnline or
// LinkType for the current value. Channels are closed once ctx is done.
type Platform interface {
	Capabilities() Capabilities
	IsOnline() bool
	LinkType() string
	WatchOnline(ctx context.Context) (<-chan struct{}, error)
	WatchLinkType(ctx context.Context) (<-chan struct{}, error)
}

// None is a platform without any network facilities, such as a sandboxed
// or headless execution context.
type None struct{}

var _ Platform = None{}

func (None) Capabilities() Capabilities { return Capabilities{} }

func (None) IsOnline() bool { return true }

func (None) LinkType() string { return "" }

func (None) WatchOnline(context.Context) (<-chan struct{}, error) { return nil, ErrUnsupported }

func (None) WatchLinkType(context.Context) (<-chan struct{}, error) { return nil, ErrUnsupported }

// notify performs a non-blocking send; a pending notification already
// tells the receiver to re-read the current value.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
