package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/m3rciful/streambot/core/telegram"
	"github.com/m3rciful/streambot/core/telegram/keyboard"
	"github.com/m3rciful/streambot/core/telegram/middleware"
	"github.com/m3rciful/streambot/core/telegram/router"
)

// RegisterAdminAction adds an action to the admin menu. Registering a name
// again replaces the action.
func (b *Bot) RegisterAdminAction(name string, action AdminAction) {
	b.actions[name] = action
}

func (b *Bot) registerDefaultActions() {
	b.RegisterAdminAction("cleanChannels", func(ctx context.Context) (any, error) {
		n, err := b.chats.CleanChannels(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"removed": n}, nil
	})
	b.RegisterAdminAction("resetTop", func(ctx context.Context) (any, error) {
		return nil, b.kv.Remove(ctx, keyTopCache)
	})
}

func (b *Bot) registerAdmin(t *router.Table) {
	isAdmin := middleware.AdminOnly(middleware.AdminOptions{
		AdminIDs: b.adminIDs,
		OnReject: b.denyAccess,
	})
	t.CallbackQuery(`/admin/(?P<command>.+)`, isAdmin, b.runAdminAction)
	t.TextOrCallbackQuery(`/admin`+trailingText, isAdmin, b.showAdminMenu)
}

func (b *Bot) denyAccess(ctx context.Context, req *router.Request, _ func() error) error {
	text := b.locale.Format("accessDenied", "id", strconv.FormatInt(req.FromID, 10))
	_, err := b.send(ctx, req.ChatID, text, telegram.MessageOptions{})
	return err
}

func (b *Bot) adminKeyboard() keyboard.Markup {
	names := make([]string, 0, len(b.actions))
	for name := range b.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	buttons := make([]keyboard.Button, 0, len(names))
	for _, name := range names {
		buttons = append(buttons, keyboard.Data(name, "/admin/"+name))
	}
	return keyboard.NPerRow(buttons, 2)
}

func (b *Bot) showAdminMenu(ctx context.Context, req *router.Request, _ func() error) error {
	_, err := b.send(ctx, req.ChatID, b.locale.GetMessage("adminMenu"), telegram.MessageOptions{Keyboard: b.adminKeyboard()})
	return err
}

func (b *Bot) runAdminAction(ctx context.Context, req *router.Request, _ func() error) error {
	command, _ := req.Param("command")
	action, ok := b.actions[command]
	if !ok {
		_, err := b.send(ctx, req.ChatID, command+" error!", telegram.MessageOptions{})
		if err != nil {
			return err
		}
		return fmt.Errorf("unknown admin action %q", command)
	}

	result, err := action(ctx)
	if err != nil {
		if _, serr := b.send(ctx, req.ChatID, command+" error!", telegram.MessageOptions{}); serr != nil {
			return serr
		}
		return err
	}

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s result: %w", command, err)
	}
	_, err = b.send(ctx, req.ChatID, command+" complete!\n"+string(body), telegram.MessageOptions{})
	return err
}
