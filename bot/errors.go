package bot

// Validation error codes.
const (
	CodeIncorrectChannelName = "INCORRECT_CHANNEL_NAME"
	CodeChannelAlreadyUsed   = "CHANNEL_ALREADY_USED"
	CodeIncorrectChatType    = "INCORRECT_CHAT_TYPE"
	CodeChannelUnreachable   = "CHANNEL_UNREACHABLE"
	CodeUnknownOption        = "UNKNOWN_OPTION"
)

// ValidationError is a user mistake. Its message is shown to the user as is.
type ValidationError struct {
	code    string
	message string
}

func newValidationError(code, message string) *ValidationError {
	return &ValidationError{code: code, message: message}
}

func (e *ValidationError) Error() string { return e.message }

// Code returns the machine-readable error code.
func (e *ValidationError) Code() string { return e.code }
