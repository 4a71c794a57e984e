package chat

import "errors"

// Domain errors for conversations and messages
var (
	ErrUnknownIntent       = errors.New("unknown intent")
	ErrEmptyUserID         = errors.New("user id is required")
	ErrEmptySessionID      = errors.New("session id is required")
	ErrEmptyMessage        = errors.New("message must contain text or images")
	ErrInvalidRole         = errors.New("invalid message role")
	ErrInvalidMessageKind  = errors.New("invalid message kind")
	ErrConversationNotOwn  = errors.New("conversation belongs to another user")
	ErrConversationMissing = errors.New("conversation not found")
)
