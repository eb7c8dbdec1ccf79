// Package commands describes entries of the bot command menu.
package commands

// Command is the menu metadata of a slash command. Handling is done by the
// router; the menu only advertises it.
type Command struct {
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
}
