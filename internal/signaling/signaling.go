package signaling

import (
	"encoding/json"
	"fmt"

	"chatify/internal/models"

	"github.com/tidwall/gjson"
)

// PeerChecker validates the target of a relayed event.
type PeerChecker interface {
	Peer(actorID, targetID string) error
}

type Emitter interface {
	EmitToUser(userID string, e models.Event) bool
}

// Relay forwards WebRTC signaling between two users. It keeps no call state:
// ending a call is just another relayed event.
type Relay struct {
	peers   PeerChecker
	emitter Emitter
}

func New(peers PeerChecker, emitter Emitter) *Relay {
	return &Relay{peers: peers, emitter: emitter}
}

// Forward relays msg from actorID to the receiverId named in its payload.
// SDP and ICE candidate documents are passed through untouched.
// It reports whether the target was connected.
func (r *Relay) Forward(actorID string, msg models.ClientMessage) (bool, error) {
	if !models.IsCallSignal(msg.Event) {
		return false, fmt.Errorf("%w: %q is not a call event", models.ErrValidation, msg.Event)
	}
	if !gjson.ValidBytes(msg.Payload) {
		return false, fmt.Errorf("%w: malformed %s payload", models.ErrValidation, msg.Event)
	}

	receiver := gjson.GetBytes(msg.Payload, "receiverId")
	if receiver.Type != gjson.String {
		return false, fmt.Errorf("%w: receiverId is required", models.ErrValidation)
	}
	if err := r.peers.Peer(actorID, receiver.Str); err != nil {
		return false, err
	}

	signal := models.CallSignal{
		Kind:     msg.Event,
		SenderID: actorID,
		Media:    gjson.GetBytes(msg.Payload, "kind").String(),
	}
	if sdp := gjson.GetBytes(msg.Payload, "sdp"); sdp.Exists() {
		signal.SDP = json.RawMessage(sdp.Raw)
	}
	if candidate := gjson.GetBytes(msg.Payload, "candidate"); candidate.Exists() {
		signal.Candidate = json.RawMessage(candidate.Raw)
	}

	switch msg.Event {
	case models.EventCallOffer, models.EventCallAnswer:
		if signal.SDP == nil {
			return false, fmt.Errorf("%w: %s requires sdp", models.ErrValidation, msg.Event)
		}
	case models.EventCallICE:
		if signal.Candidate == nil {
			return false, fmt.Errorf("%w: %s requires candidate", models.ErrValidation, msg.Event)
		}
	}

	return r.emitter.EmitToUser(receiver.Str, signal), nil
}
