package consumer

import (
	"time"

	"github.com/omniwallet/chain-indexer/internal/config"
)

// ConfigWindows adapts a loaded *config.Config to the OutdatedWindows
// interface the Transactions Consumer needs for §4.3 step 3c.
type ConfigWindows struct {
	Cfg *config.Config
}

func (w ConfigWindows) OutdatedWindow(chain config.Chain) time.Duration {
	if cc, ok := w.Cfg.Chains[chain]; ok {
		return cc.OutdatedWindow
	}
	return config.DefaultFor(chain).OutdatedWindow
}

var _ OutdatedWindows = ConfigWindows{}
