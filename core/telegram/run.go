package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/streambot/core/config"
	"github.com/m3rciful/streambot/core/logger"
	"github.com/m3rciful/streambot/core/telegram/netutil"
	"github.com/m3rciful/streambot/core/telegram/router"
	tgsender "github.com/m3rciful/streambot/core/telegram/sender"
)

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Commands *Registry
	Table    *router.Table

	SenderOptions tgsender.Options
	Sender        *tgsender.Dispatcher

	// OnError observes handler errors after the dispatcher logged them.
	OnError router.ErrorHook

	DisableWebhookCleanup bool

	// Setup registers bot routes and commands once the API is available.
	Setup   func(ctx context.Context, rt Runtime) error
	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	API        API
	Dispatcher *router.Dispatcher
	Table      *router.Table
	Commands   *Registry
	Sender     *tgsender.Dispatcher
	BotName    string
}

// RunTelegram composes and runs a Telegram bot until the provided context is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	cfg := opts.Config
	if opts.Commands == nil {
		opts.Commands = NewRegistry()
	}
	if opts.Table == nil {
		opts.Table = router.NewTable()
	}

	poller := BuildPoller(cfg)
	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:       cfg.Telegram.Token,
		Poller:      poller,
		Client:      netutil.NewClient(netutil.ClientOptions{}),
		Synchronous: true,
		OnError: func(err error, c tele.Context) {
			attrs := []slog.Attr{slog.String("err", logger.SanitizeLimit(err.Error(), 256))}
			if c != nil {
				attrs = append(attrs, slog.Int("update_id", c.Update().ID))
			}
			logger.Error(ctx, "tg", "tg.error", attrs...)
		},
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	logPollerMode(ctx, cfg, bot, poller, time.Since(buildStart), opts.DisableWebhookCleanup)

	sender := opts.Sender
	if sender == nil {
		sender = tgsender.NewDispatcher(opts.SenderOptions)
	}
	dispatcher := router.NewDispatcher(opts.Table, router.Options{
		BotName:      bot.Me.Username,
		ReplyTimeout: time.Duration(cfg.Conversation.ReplyTimeoutSeconds) * time.Second,
		OnError:      opts.OnError,
	})

	rt := Runtime{
		API:        NewBotAPI(bot),
		Dispatcher: dispatcher,
		Table:      opts.Table,
		Commands:   opts.Commands,
		Sender:     sender,
		BotName:    bot.Me.Username,
	}

	shutdown := func() {
		dispatcher.Close()
		sender.Close()
	}

	if opts.Setup != nil {
		if err := opts.Setup(ctx, rt); err != nil {
			shutdown()
			return err
		}
	}

	handle := func(c tele.Context) error {
		ev, ok := EventFromUpdate(ptr(c.Update()))
		if !ok {
			return nil
		}
		if err := dispatcher.Handle(ctx, ev); err != nil {
			logger.Warn(ctx, "tg", "update.dropped",
				slog.Int("update_id", ev.UpdateID),
				slog.String("err", err.Error()),
			)
		}
		return nil
	}
	for _, endpoint := range []string{tele.OnText, tele.OnCallback, tele.OnMigration, tele.OnMedia} {
		bot.Handle(endpoint, handle)
	}

	InitBotCommands(bot, opts.Commands)
	logger.Info(ctx, "tg.wire", "routes.ready",
		slog.Int("routes", opts.Table.Len()),
		slog.String("bot", bot.Me.Username),
	)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			shutdown()
			return err
		}
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	shutdown()

	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

func logPollerMode(ctx context.Context, cfg *coreconfig.Config, bot *tele.Bot, poller tele.Poller, took time.Duration, skipCleanup bool) {
	if p, ok := poller.(*tele.Webhook); ok {
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return
	}
	logger.Info(ctx, "tg", "mode",
		slog.String("mode", "polling"),
		slog.Int("timeout_seconds", int(longPollTimeout(cfg)/time.Second)),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	if skipCleanup || !strings.EqualFold(cfg.Telegram.RunMode, coreconfig.RunModeLongpoll) {
		return
	}
	if err := bot.RemoveWebhook(false); err != nil {
		logger.Warn(ctx, "tg", "delete_webhook",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.Info(ctx, "tg", "delete_webhook", slog.String("status", "ok"))
}
