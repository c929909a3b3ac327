package log

const (
	// Actor
	FieldUserID   = "user_id"
	FieldClientID = "client_id"

	// Chat
	FieldRoomID    = "room_id"
	FieldMessageID = "message_id"
	FieldAction    = "action"

	// Service
	FieldService = "service"
)
