package domain

import "encoding/json"

// Client -> server actions.
const (
	ActionJoinRoom       = "join_room"
	ActionLeaveRoom      = "leave_room"
	ActionSendMessage    = "send_message"
	ActionReplyToMessage = "reply_to_message"
	ActionEditMessage    = "edit_message"
	ActionDeleteMessage  = "delete_message"
	ActionToggleReaction = "toggle_reaction"
	ActionProposeMotion  = "propose_motion"
	ActionSecondMotion   = "second_motion"
	ActionVoteMotion     = "vote_motion"
	ActionPing           = "ping"
)

// Server -> client actions.
const (
	ActionNewMessage     = "new_message"
	ActionNewReply       = "new_reply"
	ActionReactionUpdate = "reaction_update"
	ActionMessageEdited  = "message_edited"
	ActionMessageDeleted = "message_deleted"
	ActionMotionProposed = "motion_proposed"
	ActionMotionSeconded = "motion_seconded"
	ActionVoteCast       = "vote_cast"
	ActionError          = "error"
	ActionPong           = "pong"
)

// Error codes carried by error frames.
const (
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeNotJoined        = "NOT_JOINED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeBadPayload       = "BAD_PAYLOAD"
	ErrCodeParentNotFound   = "PARENT_NOT_FOUND"
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Action  string      `json:"action"`
	Type    MessageType `json:"type,omitempty"`
	Payload any         `json:"payload,omitempty"`
}

// InboundFrame defers payload decoding until the action is known.
type InboundFrame struct {
	Action  string          `json:"action"`
	Type    MessageType     `json:"type,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client -> server payloads.

type SendMessagePayload struct {
	Content string `json:"content"`
	RoomID  string `json:"roomId"`
}

type ReplyPayload struct {
	Content         string `json:"content"`
	RoomID          string `json:"roomId"`
	ParentMessageID string `json:"parentMessageId"`
}

type EditMessagePayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
	Content   string `json:"content"`
}

type DeleteMessagePayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

type ToggleReactionPayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
	Emoji     string `json:"emoji"`
}

type ProposeMotionPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	RoomID      string `json:"roomId"`
	CommitteeID string `json:"committeeId"`
}

type SecondMotionPayload struct {
	MotionID string `json:"motionId"`
	RoomID   string `json:"roomId"`
}

type VoteMotionPayload struct {
	MotionID string `json:"motionId"`
	Vote     string `json:"vote"`
	RoomID   string `json:"roomId"`
}

// Server -> client payloads.

type ReactionUpdatePayload struct {
	MessageID string            `json:"messageId"`
	RoomID    string            `json:"roomId"`
	Reactions []ReactionSummary `json:"reactions"`
}

type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorFrame(code, message string) Frame {
	return Frame{
		Action:  ActionError,
		Payload: ErrorPayload{Code: code, Message: message},
	}
}
