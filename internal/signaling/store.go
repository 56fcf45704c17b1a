// Package signaling stores and relays the offer/answer/ICE exchange between
// the capture-side browser and a viewer browser. It never generates SDP
// itself.
package signaling

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/screen-relay/internal/models"
)

var (
	// ErrNotFound is returned for an unknown (or expired) session id.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidDescription is returned when an offer or answer does not parse.
	ErrInvalidDescription = errors.New("invalid session description")
)

// Store is a keyed session store for peer-to-peer negotiation.
//
// Every session moves created -> offer_received -> answer_sent and never
// back. Candidate appends for one session are serialized, so concurrent
// AddICECandidate calls never lose entries.
type Store interface {
	// Create allocates a new session in state created.
	Create(ctx context.Context) (string, error)

	// SubmitOffer stores the offer and marks the session as the latest one
	// waiting for an answer.
	SubmitOffer(ctx context.Context, id string, offer webrtc.SessionDescription) error

	// SubmitAnswer stores the answer.
	SubmitAnswer(ctx context.Context, id string, answer webrtc.SessionDescription) error

	// AddICECandidate appends a candidate in arrival order, without de-duplication.
	AddICECandidate(ctx context.Context, id string, candidate webrtc.ICECandidateInit) error

	// Get returns a copy of the session.
	Get(ctx context.Context, id string) (*models.Session, error)

	// LatestPendingOffer returns the most recently offered session, or nil
	// if no session has submitted an offer.
	LatestPendingOffer(ctx context.Context) (*models.PendingOffer, error)
}

// ValidateOffer checks the description is an offer carrying parseable SDP.
func ValidateOffer(sd webrtc.SessionDescription) error {
	if sd.Type != webrtc.SDPTypeOffer {
		return fmt.Errorf("%w: expected type offer, got %s", ErrInvalidDescription, sd.Type)
	}
	return validateSDP(sd)
}

// ValidateAnswer accepts answer and pranswer descriptions carrying parseable SDP.
func ValidateAnswer(sd webrtc.SessionDescription) error {
	if sd.Type != webrtc.SDPTypeAnswer && sd.Type != webrtc.SDPTypePranswer {
		return fmt.Errorf("%w: expected type answer, got %s", ErrInvalidDescription, sd.Type)
	}
	return validateSDP(sd)
}

func validateSDP(sd webrtc.SessionDescription) error {
	if _, err := sd.Unmarshal(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	return nil
}
