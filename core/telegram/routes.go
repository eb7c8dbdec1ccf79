package telegram

import (
	coreconfig "github.com/m3rciful/streambot/core/config"
	"github.com/m3rciful/streambot/core/telegram/middleware"
	"github.com/m3rciful/streambot/core/telegram/router"
)

// allKinds covers every event the runtime feeds to the dispatcher.
var allKinds = []router.Kind{router.KindMessage, router.KindCallbackQuery}

// RegisterDefaultRoutes installs the global routes shared by bots built on the
// core. It must run before any bot route so they see every event first.
func RegisterDefaultRoutes(table *router.Table, cfg *coreconfig.Config, onLimited router.HandlerFunc) {
	if cfg == nil {
		return
	}
	if limit := middleware.RateLimitFromConfig(cfg.RateLimit, onLimited); limit != nil {
		table.MustRegister(allKinds, "", limit)
	}
}
