package telegram

import "strings"

// Soft failures are recognised by the Bot API description text.
const (
	errTextNotModified  = "message is not modified"
	errTextCantEdit     = "message can't be edited"
	errTextEditNotFound = "message to edit not found"
	errTextChatNotFound = "chat not found"
	errTextNotMember    = "bot is not a member"
)

func errorContains(err error, pattern string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), pattern)
}

// IsNotModified reports an edit that would not change the message.
func IsNotModified(err error) bool { return errorContains(err, errTextNotModified) }

// IsCantEdit reports a message the bot may not edit.
func IsCantEdit(err error) bool { return errorContains(err, errTextCantEdit) }

// IsEditTargetMissing reports an edit of a deleted or unknown message.
func IsEditTargetMissing(err error) bool { return errorContains(err, errTextEditNotFound) }

// IsChatNotFound reports an unknown chat or channel.
func IsChatNotFound(err error) bool { return errorContains(err, errTextChatNotFound) }

// IsNotMember reports a chat the bot has not joined.
func IsNotMember(err error) bool { return errorContains(err, errTextNotMember) }
