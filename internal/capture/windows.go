package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"github.com/mossy-p/screen-relay/internal/models"
)

// ErrNoWindowTool is returned when no window enumeration tool is configured.
var ErrNoWindowTool = errors.New("window list tool not configured")

// WindowLister runs the external window enumeration tool, which prints a
// JSON array of window records on stdout.
type WindowLister struct {
	argv []string
}

func NewWindowLister(argv []string) *WindowLister {
	return &WindowLister{argv: argv}
}

// List returns the records exactly as the tool reports them.
func (l *WindowLister) List(ctx context.Context) ([]models.Window, error) {
	if len(l.argv) == 0 {
		return nil, ErrNoWindowTool
	}

	out, err := exec.CommandContext(ctx, l.argv[0], l.argv[1:]...).Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", l.argv[0], err)
	}

	var windows []models.Window
	if err := json.Unmarshal(out, &windows); err != nil {
		return nil, fmt.Errorf("failed to parse window list: %w", err)
	}
	if windows == nil {
		windows = []models.Window{}
	}
	return windows, nil
}
