package models

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// SessionState tracks where a signaling session is in the offer/answer exchange
type SessionState string

const (
	SessionCreated       SessionState = "created"
	SessionOfferReceived SessionState = "offer_received"
	SessionAnswerSent    SessionState = "answer_sent"
)

// Rank orders states along created -> offer_received -> answer_sent
func (s SessionState) Rank() int {
	switch s {
	case SessionOfferReceived:
		return 1
	case SessionAnswerSent:
		return 2
	}
	return 0
}

// Advance returns the later of s and next; states never move backwards
func (s SessionState) Advance(next SessionState) SessionState {
	if next.Rank() > s.Rank() {
		return next
	}
	return s
}

// Session is the bookkeeping record for one peer-to-peer negotiation attempt
type Session struct {
	ID         string                     `json:"id"`
	CreatedAt  time.Time                  `json:"createdAt"`
	UpdatedAt  time.Time                  `json:"updatedAt"`
	State      SessionState               `json:"state"`
	Offer      *webrtc.SessionDescription `json:"offer"`
	Answer     *webrtc.SessionDescription `json:"answer"`
	Candidates []webrtc.ICECandidateInit  `json:"candidates"`
}

// PendingOffer is the most recently offered session, as seen by the capture side
type PendingOffer struct {
	SessionID string                     `json:"sessionId"`
	Offer     *webrtc.SessionDescription `json:"offer"`
	State     SessionState               `json:"state"`
}

// CreateSessionResponse is the response for creating a session
type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}
