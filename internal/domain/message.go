package domain

import (
	"sort"
	"strings"
	"time"
)

type MessageType string

const (
	TypeDM     MessageType = "dm"
	TypeGroup  MessageType = "group"
	TypeMotion MessageType = "motion"
	TypeSystem MessageType = "system"
	TypeReply  MessageType = "reply"
)

// Message is the persisted chat message. Reactions maps an emoji to the
// set of user ids that reacted with it. OriginalContent holds the pre-edit
// content of the first edit only; later edits keep it.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	SenderID  string      `json:"senderId"`
	Content   string      `json:"content"`
	RoomID    string      `json:"roomId"`
	Timestamp time.Time   `json:"timestamp"`

	ParentMessageID *string `json:"parentMessageId,omitempty"`
	ThreadCount     int     `json:"threadCount,omitempty"`

	IsEdited        bool       `json:"isEdited,omitempty"`
	EditedAt        *time.Time `json:"editedAt,omitempty"`
	OriginalContent string     `json:"originalContent,omitempty"`

	Reactions map[string][]string `json:"reactions,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (m *Message) Clone() *Message {
	cp := *m
	if m.ParentMessageID != nil {
		id := *m.ParentMessageID
		cp.ParentMessageID = &id
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		cp.EditedAt = &t
	}
	if m.Reactions != nil {
		cp.Reactions = make(map[string][]string, len(m.Reactions))
		for emoji, users := range m.Reactions {
			cp.Reactions[emoji] = append([]string(nil), users...)
		}
	}
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// ToggleReaction flips the presence of userID in the emoji's reactor set
// and reports whether the user is a reactor afterwards.
func (m *Message) ToggleReaction(emoji, userID string) bool {
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	users := m.Reactions[emoji]
	for i, u := range users {
		if u == userID {
			users = append(users[:i], users[i+1:]...)
			if len(users) == 0 {
				delete(m.Reactions, emoji)
			} else {
				m.Reactions[emoji] = users
			}
			return false
		}
	}
	m.Reactions[emoji] = append(users, userID)
	return true
}

// ReactionSummary is the wire shape of one emoji's reactions.
type ReactionSummary struct {
	Emoji   string   `json:"emoji"`
	Count   int      `json:"count"`
	UserIDs []string `json:"userIds"`
}

// ReactionSummaries flattens the reaction map into a stable, sorted list.
func (m *Message) ReactionSummaries() []ReactionSummary {
	if len(m.Reactions) == 0 {
		return []ReactionSummary{}
	}
	out := make([]ReactionSummary, 0, len(m.Reactions))
	for emoji, users := range m.Reactions {
		out = append(out, ReactionSummary{
			Emoji:   emoji,
			Count:   len(users),
			UserIDs: append([]string(nil), users...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Emoji < out[j].Emoji })
	return out
}

type RoomType string

const (
	RoomTypeDM        RoomType = "dm"
	RoomTypeGroup     RoomType = "group"
	RoomTypeCommittee RoomType = "committee"
)

type Room struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Type         RoomType  `json:"type"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// DMRoomID builds the canonical room id for a user pair; the lower id
// sorts first so both sides derive the same room.
func DMRoomID(userID1, userID2 string) string {
	if userID1 < userID2 {
		return "dm_" + userID1 + "_" + userID2
	}
	return "dm_" + userID2 + "_" + userID1
}

func GroupRoomID(groupID string) string {
	return "group_" + groupID
}

func CommitteeRoomID(committeeID string) string {
	return "committee_" + committeeID
}

// RoomTypeOf reports the room kind encoded in a room id.
func RoomTypeOf(roomID string) (RoomType, bool) {
	switch {
	case strings.HasPrefix(roomID, "dm_"):
		return RoomTypeDM, true
	case strings.HasPrefix(roomID, "group_"):
		return RoomTypeGroup, true
	case strings.HasPrefix(roomID, "committee_"):
		return RoomTypeCommittee, true
	default:
		return "", false
	}
}

// DMParticipants extracts the two participant ids from a DM room id.
func DMParticipants(roomID string) (string, string, bool) {
	if !strings.HasPrefix(roomID, "dm_") {
		return "", "", false
	}
	parts := strings.Split(roomID, "_")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
