// Package app wires the streambot runtime from its configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/streambot/bot"
	"github.com/m3rciful/streambot/chats"
	"github.com/m3rciful/streambot/core/bootstrap"
	"github.com/m3rciful/streambot/core/logger"
	coretelegram "github.com/m3rciful/streambot/core/telegram"
	"github.com/m3rciful/streambot/core/telegram/router"
	"github.com/m3rciful/streambot/core/telegram/sender"
	"github.com/m3rciful/streambot/providers"
	"github.com/m3rciful/streambot/providers/youtube"
	"github.com/m3rciful/streambot/tracker"
)

const component = "app"

// App owns the infrastructure opened at bootstrap.
type App struct {
	cfg   *Config
	infra *bootstrap.Result
	chats *chats.Repository
}

// Bootstrap opens the database, storage and locale for cfg.
func Bootstrap(ctx context.Context, cfg *Config) (*App, error) {
	infra, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:     &cfg.Config,
		Database:   cfg.Database,
		LocalePath: cfg.Locale.Path,
	})
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, infra: infra, chats: chats.NewRepository(infra.DB)}, nil
}

// TelegramRunOptions builds the runtime options. Services that need the
// Telegram API are created in Setup and released in OnStop.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	var (
		yt       *youtube.Client
		tr       *tracker.Tracker
		trSender *sender.Dispatcher
	)
	release := func() {
		if yt != nil {
			yt.Close()
		}
		if tr != nil {
			tr.Close()
		}
		if trSender != nil {
			trSender.Close()
		}
		a.infra.Close()
	}

	return coretelegram.RunOptions{
		Config:   &a.cfg.Config,
		Commands: coretelegram.NewRegistry(),
		Table:    router.NewTable(),
		Setup: func(ctx context.Context, rt coretelegram.Runtime) error {
			var err error
			yt, err = youtube.New(a.cfg.YouTube, nil)
			if err != nil {
				release()
				return fmt.Errorf("app: youtube client: %w", err)
			}
			trSender = sender.NewDispatcher(tracker.SenderOptions)
			tr, err = tracker.New(a.cfg.Tracker, nil, trSender)
			if err != nil {
				release()
				return fmt.Errorf("app: tracker: %w", err)
			}

			coretelegram.RegisterDefaultRoutes(rt.Table, &a.cfg.Config, nil)
			b := bot.New(bot.Deps{
				API:      rt.API,
				Chats:    a.chats,
				KV:       a.infra.Storage,
				Locale:   a.infra.Locale,
				Services: []providers.Service{yt},
				Tracker:  tr,
				AdminIDs: a.cfg.AdminIDs,
			})
			b.Register(rt.Table)
			b.RegisterCommands(rt.Commands)
			logger.Info(ctx, component, "bot.wired",
				slog.Int("admins", len(a.cfg.AdminIDs)),
				slog.Bool("tracker", a.cfg.Tracker.TrackingID != ""),
			)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			release()
			return nil
		},
	}, nil
}
