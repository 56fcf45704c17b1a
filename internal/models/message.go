package models

import "encoding/json"

// InputType is the kind of viewer input event
type InputType string

const (
	InputClick     InputType = "click"
	InputMouseMove InputType = "mousemove"
	InputMouseDown InputType = "mousedown"
	InputMouseUp   InputType = "mouseup"
	InputKeyDown   InputType = "keydown"

	// InputEnvelope wraps an event as {type: "input", data: {...}}
	InputEnvelope InputType = "input"
)

// Modifier names carried in InputEvent.Modifiers
const (
	ModifierCtrl  = "ctrl"
	ModifierAlt   = "alt"
	ModifierMeta  = "meta"
	ModifierShift = "shift"
)

// InputEvent is a viewer pointer or keyboard event
type InputEvent struct {
	Type         InputType       `json:"type"`
	X            float64         `json:"x"`
	Y            float64         `json:"y"`
	Button       int             `json:"button,omitempty"`
	Key          string          `json:"key,omitempty"`
	Modifiers    []string        `json:"modifiers,omitempty"`
	CanvasWidth  int             `json:"canvasWidth,omitempty"`
	CanvasHeight int             `json:"canvasHeight,omitempty"`
	CtrlKey      bool            `json:"ctrlKey,omitempty"`
	AltKey       bool            `json:"altKey,omitempty"`
	MetaKey      bool            `json:"metaKey,omitempty"`
	ShiftKey     bool            `json:"shiftKey,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"` // Only set on InputEnvelope messages
}

// IsPointer reports whether the event carries coordinates
func (e InputEvent) IsPointer() bool {
	switch e.Type {
	case InputClick, InputMouseMove, InputMouseDown, InputMouseUp:
		return true
	}
	return false
}

// HasModifier checks both the modifiers list and the legacy boolean flags
func (e InputEvent) HasModifier(name string) bool {
	for _, m := range e.Modifiers {
		if m == name {
			return true
		}
	}
	switch name {
	case ModifierCtrl:
		return e.CtrlKey
	case ModifierAlt:
		return e.AltKey
	case ModifierMeta:
		return e.MetaKey
	case ModifierShift:
		return e.ShiftKey
	}
	return false
}
