package bot

import (
	"strconv"

	"github.com/m3rciful/streambot/chats"
	"github.com/m3rciful/streambot/core/telegram/callbacks"
	"github.com/m3rciful/streambot/core/telegram/keyboard"
)

// menuPages is the number of pages of the main menu.
const menuPages = 2

func menuKeyboard(page int) keyboard.Markup {
	switch page {
	case 1:
		return keyboard.Markup{
			{keyboard.Data("Options", callbacks.WithQuery("/options", "rel", "menu"))},
			{
				keyboard.Data("<", "/menu"),
				keyboard.Data("Top 10", "/top"),
				keyboard.Data("About", "/about"),
			},
		}
	default:
		return keyboard.Markup{
			{keyboard.Data("Show the channel list", callbacks.WithQuery("/list", "rel", "menu"))},
			{
				keyboard.Data("Add channel", "/add"),
				keyboard.Data("Delete channel", callbacks.WithQuery("/delete", "rel", "menu")),
				keyboard.Data(">", callbacks.Path("menu", strconv.Itoa(1))),
			},
		}
	}
}

func optionsKeyboard(chat *chats.Chat) keyboard.Markup {
	var rows keyboard.Markup
	if chat.IsHidePreview {
		rows = append(rows, keyboard.Row{keyboard.Data("Show preview", "/options/isHidePreview/false")})
	} else {
		rows = append(rows, keyboard.Row{keyboard.Data("Hide preview", "/options/isHidePreview/true")})
	}
	if name := chat.Channel(); name != "" {
		rows = append(rows, keyboard.Row{keyboard.Data("Remove channel ("+name+")", "/deleteChannel")})
	} else {
		rows = append(rows, keyboard.Row{keyboard.Data("Set channel", "/setChannel")})
	}
	if chat.Channel() != "" {
		if chat.IsMuted {
			rows = append(rows, keyboard.Row{keyboard.Data("Unmute", "/options/isMuted/false")})
		} else {
			rows = append(rows, keyboard.Row{keyboard.Data("Mute", "/options/isMuted/true")})
		}
	}
	return rows
}

func listControls(page, pages int) keyboard.Markup {
	var row keyboard.Row
	if page > 0 {
		row = append(row, keyboard.Data("<", callbacks.WithQuery("/list", "page", strconv.Itoa(page-1))))
	}
	if page < pages-1 {
		row = append(row, keyboard.Data(">", callbacks.WithQuery("/list", "page", strconv.Itoa(page+1))))
	}
	if len(row) == 0 {
		return nil
	}
	return keyboard.Markup{row}
}
