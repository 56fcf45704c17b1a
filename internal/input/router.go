// Package input turns viewer pointer and keyboard events into commands for
// the capture process.
package input

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/mossy-p/screen-relay/internal/capture"
	"github.com/mossy-p/screen-relay/internal/logger"
	"github.com/mossy-p/screen-relay/internal/models"
)

// ErrMalformedInput is returned for messages that are not a usable input
// event. The message is dropped; the viewer connection stays open.
var ErrMalformedInput = errors.New("malformed input event")

// Executor runs one command against the capture process.
type Executor interface {
	Execute(ctx context.Context, cmd capture.Command) error
}

// ContextSource supplies the capture mode and display metrics an event is
// transformed against.
type ContextSource interface {
	Context(ctx context.Context) models.CaptureContext
}

// namedKeys maps browser key names to the tokens the injection tool expects.
var namedKeys = map[string]string{
	" ":         "space",
	"Enter":     "Return",
	"Backspace": "BackSpace",
	"Tab":       "Tab",
	"Escape":    "Escape",
}

var modifierOrder = []string{
	models.ModifierCtrl,
	models.ModifierAlt,
	models.ModifierMeta,
	models.ModifierShift,
}

type Router struct {
	exec      Executor
	state     ContextSource
	transform capture.Transformer
}

func NewRouter(exec Executor, state ContextSource, transform capture.Transformer) *Router {
	return &Router{exec: exec, state: state, transform: transform}
}

// ParseEvent decodes a viewer message. Both the flat event shape and the
// {type: "input", data: {...}} envelope are accepted.
func ParseEvent(data []byte) (models.InputEvent, error) {
	var ev models.InputEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	if ev.Type == models.InputEnvelope {
		if len(ev.Data) == 0 {
			return ev, fmt.Errorf("%w: envelope without data", ErrMalformedInput)
		}
		var inner models.InputEvent
		if err := json.Unmarshal(ev.Data, &inner); err != nil {
			return ev, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		ev = inner
	}

	if !ev.IsPointer() && ev.Type != models.InputKeyDown {
		return ev, fmt.Errorf("%w: unsupported type %q", ErrMalformedInput, ev.Type)
	}
	return ev, nil
}

// Route issues at most one command for ev. Pointer moves and releases and
// keys outside the supported set are dropped without error, since the
// capture process only injects clicks and key presses.
func (r *Router) Route(ctx context.Context, ev models.InputEvent) error {
	var (
		cmd capture.Command
		ok  bool
		err error
	)

	cc := r.state.Context(ctx)
	switch {
	case ev.IsPointer():
		cmd, ok, err = r.pointerCommand(ev, cc)
	case ev.Type == models.InputKeyDown:
		cmd, ok, err = keyCommand(ev)
	default:
		err = fmt.Errorf("%w: unsupported type %q", ErrMalformedInput, ev.Type)
	}
	if err != nil {
		return err
	}
	if !ok {
		logger.Debugf("Ignoring %s event (key %q)", ev.Type, ev.Key)
		return nil
	}

	if cc.Mode == models.CaptureWindow {
		cmd.WindowID = cc.WindowID
	}

	if err := r.exec.Execute(ctx, cmd); err != nil {
		return fmt.Errorf("%s %s: %w", cmd.Action, cmd.Path(), err)
	}
	return nil
}

func (r *Router) pointerCommand(ev models.InputEvent, cc models.CaptureContext) (capture.Command, bool, error) {
	if !finite(ev.X) || !finite(ev.Y) {
		return capture.Command{}, false, fmt.Errorf("%w: non-finite coordinates", ErrMalformedInput)
	}
	if ev.Type != models.InputClick && ev.Type != models.InputMouseDown {
		return capture.Command{}, false, nil
	}

	canvas := models.Size{Width: ev.CanvasWidth, Height: ev.CanvasHeight}
	p := r.transform.Transform(models.Point{X: ev.X, Y: ev.Y}, canvas, cc)

	if logger.Enabled(logger.LevelDebug) {
		logger.Debugf("%s (%g,%g) canvas %dx%d %s -> (%d,%d)",
			ev.Type, ev.X, ev.Y, canvas.Width, canvas.Height, cc.Mode, p.X, p.Y)
	}

	return capture.Command{Action: capture.ActionClick, X: p.X, Y: p.Y}, true, nil
}

func keyCommand(ev models.InputEvent) (capture.Command, bool, error) {
	if ev.Key == "" {
		return capture.Command{}, false, fmt.Errorf("%w: keydown without key", ErrMalformedInput)
	}

	key, ok := TranslateKey(ev.Key)
	if !ok {
		return capture.Command{}, false, nil
	}

	var mods []string
	for _, m := range modifierOrder {
		if ev.HasModifier(m) {
			mods = append(mods, m)
		}
	}

	return capture.Command{Action: capture.ActionKey, Key: key, Modifiers: mods}, true, nil
}

// TranslateKey maps a browser key name to the injection tool token. Single
// characters pass through; other multi-character names are unsupported.
func TranslateKey(key string) (string, bool) {
	if token, ok := namedKeys[key]; ok {
		return token, true
	}
	if utf8.RuneCountInString(key) == 1 {
		return key, true
	}
	return "", false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
