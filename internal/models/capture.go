package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CaptureMode is the active capture target kind
type CaptureMode string

const (
	CaptureDesktop CaptureMode = "desktop"
	CaptureWindow  CaptureMode = "window"
)

// CaptureTarget is the current capture target. WindowID is set iff Mode is CaptureWindow.
type CaptureTarget struct {
	Mode     CaptureMode `json:"mode"`
	WindowID int         `json:"windowId,omitempty"`
}

// DisplayMetrics as reported by the capture process /display endpoint
type DisplayMetrics struct {
	LogicalWidth   int     `json:"width"`
	LogicalHeight  int     `json:"height"`
	PhysicalWidth  int     `json:"physicalWidth"`
	PhysicalHeight int     `json:"physicalHeight"`
	ScaleFactor    float64 `json:"scaleFactor"`
}

// DefaultDisplayMetrics is used when the capture process cannot report metrics
var DefaultDisplayMetrics = DisplayMetrics{
	LogicalWidth:   1920,
	LogicalHeight:  1080,
	PhysicalWidth:  3840,
	PhysicalHeight: 2160,
	ScaleFactor:    2,
}

// CaptureContext is everything the coordinate transform needs besides the point itself
type CaptureContext struct {
	CaptureTarget
	Display DisplayMetrics `json:"displayMetrics"`
}

// Point in either viewer canvas space or source-display logical space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size of the viewer canvas in pixels; zero means unknown
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Window is one record from the window enumeration tool, kept as the raw
// JSON object the tool printed
type Window = json.RawMessage

// SwitchWindowRequest is the request body for switching capture to a window
type SwitchWindowRequest struct {
	CGWindowID WindowID `json:"cgWindowID" binding:"required,min=1"`
}

// WindowID is a window id that decodes from a JSON number or a numeric
// string such as "42"
type WindowID int

func (id *WindowID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("cgWindowID: %q is not an integer", raw)
	}
	*id = WindowID(n)
	return nil
}

// CaptureInfo is the coordinate debugging snapshot
type CaptureInfo struct {
	CaptureMode        CaptureMode    `json:"captureMode"`
	WindowID           *int           `json:"windowID"`
	DisplayInfo        DisplayMetrics `json:"displayInfo"`
	DisplayCached      bool           `json:"displayCached"`
	DebugMode          bool           `json:"debugMode"`
	CalibrationOffsets Point          `json:"calibrationOffsets"`
}
