package broker

import (
	"encoding/json"

	"github.com/zach-short/ceros/internal/domain"
	"github.com/zach-short/ceros/internal/hub"
)

// Motion actions ride the chat socket but are not persisted by the chat
// core; the committee service owns motion state. The broker only
// validates membership and relays the event to the room.

func (b *Broker) handleProposeMotion(c *hub.Client, frame domain.InboundFrame) {
	var p domain.ProposeMotionPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil || p.Title == "" || p.RoomID == "" || p.CommitteeID == "" {
		b.reject(c, domain.ErrCodeBadPayload, "invalid motion proposal payload")
		return
	}
	if !b.requireJoined(c, p.RoomID) {
		return
	}

	event := domain.Frame{
		Action: domain.ActionMotionProposed,
		Type:   domain.TypeMotion,
		Payload: map[string]any{
			"title":       p.Title,
			"description": p.Description,
			"moverId":     c.UserID,
			"committeeId": p.CommitteeID,
			"status":      "proposed",
		},
	}
	b.hub.Fanout(p.RoomID, event, nil)
	b.archive(p.RoomID, event)
}

func (b *Broker) handleSecondMotion(c *hub.Client, frame domain.InboundFrame) {
	var p domain.SecondMotionPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil || p.MotionID == "" || p.RoomID == "" {
		b.reject(c, domain.ErrCodeBadPayload, "invalid second motion payload")
		return
	}
	if !b.requireJoined(c, p.RoomID) {
		return
	}

	event := domain.Frame{
		Action: domain.ActionMotionSeconded,
		Type:   domain.TypeMotion,
		Payload: map[string]any{
			"motionId":   p.MotionID,
			"seconderId": c.UserID,
		},
	}
	b.hub.Fanout(p.RoomID, event, nil)
	b.archive(p.RoomID, event)
}

func (b *Broker) handleVoteMotion(c *hub.Client, frame domain.InboundFrame) {
	var p domain.VoteMotionPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil || p.MotionID == "" || p.RoomID == "" || p.Vote == "" {
		b.reject(c, domain.ErrCodeBadPayload, "invalid vote payload")
		return
	}
	if !b.requireJoined(c, p.RoomID) {
		return
	}

	switch p.Vote {
	case "aye", "nay", "abstain":
	default:
		b.reject(c, domain.ErrCodeBadPayload, "invalid vote result")
		return
	}

	event := domain.Frame{
		Action: domain.ActionVoteCast,
		Type:   domain.TypeMotion,
		Payload: map[string]any{
			"motionId": p.MotionID,
			"voterId":  c.UserID,
			"vote":     p.Vote,
		},
	}
	b.hub.Fanout(p.RoomID, event, nil)
	b.archive(p.RoomID, event)
}
