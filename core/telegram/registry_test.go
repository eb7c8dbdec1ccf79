package telegram

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/streambot/core/telegram/commands"
)

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()
	require.True(t, reg.RegisterCommand("/list", commands.Command{Description: "Show the channel list"}))
	require.True(t, reg.RegisterCommand("/add", commands.Command{Description: "Add channel"}))
	require.True(t, reg.RegisterCommand("/admin", commands.Command{Description: "Admin menu", AdminOnly: true}))
	require.True(t, reg.RegisterCommand("/start", commands.Command{Description: "Menu", Aliases: []string{"menu", "/help"}}))

	require.False(t, reg.RegisterCommand("/list", commands.Command{Description: "again"}))
	require.False(t, reg.RegisterCommand("top", commands.Command{Description: "no slash"}))
	require.False(t, reg.RegisterCommand("/empty", commands.Command{}))

	visible := reg.ListCommands(true)
	names := make([]string, 0, len(visible))
	for _, c := range visible {
		names = append(names, c.Text)
	}
	require.Equal(t, []string{"add", "list", "start"}, names)
	require.Len(t, reg.ListCommands(false), 4)

	key, _, ok := reg.LookupCommand("help")
	require.True(t, ok)
	require.Equal(t, "/start", key)
	key, _, ok = reg.LookupCommand("menu")
	require.True(t, ok)
	require.Equal(t, "/start", key)
	_, _, ok = reg.LookupCommand("/nope")
	require.False(t, ok)
}
