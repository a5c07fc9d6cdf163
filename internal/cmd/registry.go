package cmd

import (
	"github.com/justyntemme/gainlink/internal/config"
	"github.com/justyntemme/gainlink/pkg/gainstage"
	"github.com/justyntemme/gainlink/pkg/shared"
)

// newRegistry creates a registry handle on backing, configured from c.
func newRegistry(c *config.Config, backing shared.Backing) *shared.Registry {
	return shared.New(backing,
		shared.WithLogger(log.WithName("registry")),
		shared.WithReclaimAfter(c.Timing.ReclaimAfter),
	)
}

// openRegistry maps the configured registry file.
func openRegistry(c *config.Config) (*shared.Registry, *shared.FileBacking, error) {
	backing := shared.NewFileBacking(c.Registry.Path)
	reg := newRegistry(c, backing)
	if err := reg.OpenOrCreate(); err != nil {
		return nil, nil, err
	}
	return reg, backing, nil
}

// instanceOptions carries the configured timing into a coordinator or
// participant.
func instanceOptions(c *config.Config) []gainstage.Option {
	return []gainstage.Option{
		gainstage.WithLogger(log),
		gainstage.WithBroadcastInterval(c.Timing.BroadcastInterval),
		gainstage.WithKeepaliveInterval(c.Timing.KeepaliveInterval),
		gainstage.WithFreshness(c.Timing.Freshness),
		gainstage.WithLiveWindow(c.Timing.LiveWindow),
		gainstage.WithActiveWindow(c.Timing.ActiveWindow),
	}
}
