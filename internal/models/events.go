package models

import "encoding/json"

// EventName is the wire name of a socket event.
type EventName string

const (
	EventNewMessage          EventName = "newMessage"
	EventMessageDeleted      EventName = "messageDeleted"
	EventMessageReacted      EventName = "messageReacted"
	EventGroupMessage        EventName = "groupMessage"
	EventGroupMessageDeleted EventName = "groupMessageDeleted"
	EventGroupMessageReacted EventName = "groupMessageReacted"
	EventTyping              EventName = "typing"
	EventStopTyping          EventName = "stopTyping"
	EventGroupTyping         EventName = "groupTyping"
	EventGroupStopTyping     EventName = "groupStopTyping"
	EventCallOffer           EventName = "call:offer"
	EventCallAnswer          EventName = "call:answer"
	EventCallICE             EventName = "call:ice"
	EventCallEnd             EventName = "call:end"
	EventOnlineUsers         EventName = "getOnlineUsers"
)

// Event is the closed set of outbound events. Only types in this package
// implement it.
type Event interface {
	Name() EventName
	sealed()
}

// NewMessage announces a direct message to its receiver.
type NewMessage struct {
	Message DirectMessage
}

func (NewMessage) Name() EventName { return EventNewMessage }
func (NewMessage) sealed()         {}

func (e NewMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Message)
}

type MessageDeleted struct {
	ID string `json:"id"`
}

func (MessageDeleted) Name() EventName { return EventMessageDeleted }
func (MessageDeleted) sealed()         {}

// MessageReacted carries the full reactions snapshot, not a delta.
type MessageReacted struct {
	ID        string    `json:"id"`
	Reactions Reactions `json:"reactions"`
}

func (MessageReacted) Name() EventName { return EventMessageReacted }
func (MessageReacted) sealed()         {}

type GroupMessageCreated struct {
	Message GroupMessage
}

func (GroupMessageCreated) Name() EventName { return EventGroupMessage }
func (GroupMessageCreated) sealed()         {}

func (e GroupMessageCreated) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Message)
}

type GroupMessageDeleted struct {
	ID      string `json:"id"`
	GroupID string `json:"groupId"`
}

func (GroupMessageDeleted) Name() EventName { return EventGroupMessageDeleted }
func (GroupMessageDeleted) sealed()         {}

type GroupMessageReacted struct {
	ID        string    `json:"id"`
	Reactions Reactions `json:"reactions"`
}

func (GroupMessageReacted) Name() EventName { return EventGroupMessageReacted }
func (GroupMessageReacted) sealed()         {}

// Typing is sent to the other party of a direct conversation.
type Typing struct {
	SenderID string `json:"senderId"`
	Stopped  bool   `json:"-"`
}

func (e Typing) Name() EventName {
	if e.Stopped {
		return EventStopTyping
	}
	return EventTyping
}
func (Typing) sealed() {}

type GroupTyping struct {
	GroupID  string `json:"groupId"`
	SenderID string `json:"senderId"`
	Stopped  bool   `json:"-"`
}

func (e GroupTyping) Name() EventName {
	if e.Stopped {
		return EventGroupStopTyping
	}
	return EventGroupTyping
}
func (GroupTyping) sealed() {}

// CallSignal is a relayed WebRTC signaling message. SDP and Candidate are
// passed through untouched.
type CallSignal struct {
	Kind      EventName       `json:"-"`
	SenderID  string          `json:"senderId"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Media     string          `json:"kind,omitempty"`
}

func (e CallSignal) Name() EventName { return e.Kind }
func (CallSignal) sealed()           {}

// IsCallSignal reports whether name is one of the relayed call events.
func IsCallSignal(name EventName) bool {
	switch name {
	case EventCallOffer, EventCallAnswer, EventCallICE, EventCallEnd:
		return true
	}
	return false
}

// OnlineUsers lists connected user ids. It encodes as a bare array.
type OnlineUsers struct {
	UserIDs []string
}

func (OnlineUsers) Name() EventName { return EventOnlineUsers }
func (OnlineUsers) sealed()         {}

func (e OnlineUsers) MarshalJSON() ([]byte, error) {
	if e.UserIDs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(e.UserIDs)
}

// ClientMessage is a frame received from a socket client.
type ClientMessage struct {
	Event   EventName       `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ServerMessage is a frame sent to a socket client.
type ServerMessage struct {
	Event   EventName `json:"event"`
	Payload Event     `json:"payload"`
}

// NewServerMessage wraps e into a frame.
func NewServerMessage(e Event) ServerMessage {
	return ServerMessage{Event: e.Name(), Payload: e}
}
