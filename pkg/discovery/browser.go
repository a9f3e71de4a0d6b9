package discovery

import (
	"context"
	"time"
)

// Browser finds servers on the local network.
type Browser interface {
	// Browse streams servers as they appear. Addresses seen on several
	// interfaces are merged into one entry. The channel is closed when ctx
	// is done.
	Browse(ctx context.Context) (<-chan *ServerService, error)

	// FindServer returns the first server whose instance name matches, or
	// any server if instance is empty.
	FindServer(ctx context.Context, instance string) (*ServerService, error)
}

// BrowserConfig configures browsing.
type BrowserConfig struct {
	// BrowseTimeout bounds FindServer when ctx has no deadline.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface restricts browsing to one network interface.
	// Empty means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}
