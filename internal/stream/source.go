package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/mossy-p/screen-relay/internal/demux"
	"github.com/mossy-p/screen-relay/internal/logger"
)

const pipeReadSize = 64 << 10

// Publisher receives complete frames in stream order.
type Publisher interface {
	Broadcast(frame []byte) int
}

// Source produces frames until ctx is cancelled or the upstream ends.
type Source interface {
	Run(ctx context.Context) error
}

// FrameFetcher returns the capture process's most recent frame.
type FrameFetcher interface {
	Frame(ctx context.Context) ([]byte, error)
}

// Poller fetches one frame per tick. Failed fetches are skipped and
// retried on the next tick.
type Poller struct {
	fetcher  FrameFetcher
	interval time.Duration
	pub      Publisher

	failures atomic.Uint64
}

func NewPoller(fetcher FrameFetcher, interval time.Duration, pub Publisher) *Poller {
	return &Poller{fetcher: fetcher, interval: interval, pub: pub}
}

func (p *Poller) Run(ctx context.Context) error {
	logger.Infof("Polling capture process every %s", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		frame, err := p.fetcher.Frame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.failures.Add(1)
			if !failing {
				logger.Warnf("Frame fetch failed, retrying every %s: %v", p.interval, err)
				failing = true
			}
			continue
		}
		if failing {
			logger.Infof("Frame fetch recovered")
			failing = false
		}

		p.pub.Broadcast(frame)
	}
}

// Failures returns the number of failed fetches.
func (p *Poller) Failures() uint64 {
	return p.failures.Load()
}

// PipeSource reads a continuous JPEG byte stream and splits it into frames.
type PipeSource struct {
	argv     []string
	maxFrame int
	pub      Publisher

	frames   atomic.Uint64
	overruns atomic.Uint64
}

// NewPipeSource creates a source reading the standard output of argv.
func NewPipeSource(argv []string, maxFrameSize int, pub Publisher) *PipeSource {
	return &PipeSource{argv: argv, maxFrame: maxFrameSize, pub: pub}
}

// Run starts the command and consumes its output until it exits or ctx is
// cancelled. The command is not restarted.
func (p *PipeSource) Run(ctx context.Context) error {
	if len(p.argv) == 0 {
		return errors.New("pipe source: no command configured")
	}

	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("pipe source: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("pipe source: start %s: %w", p.argv[0], err)
	}
	logger.Infof("Reading frames from %s (pid %d)", p.argv[0], cmd.Process.Pid)

	consumeErr := p.Consume(stdout)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if consumeErr != nil {
		return consumeErr
	}
	if waitErr != nil {
		return fmt.Errorf("pipe source: %s exited: %w", p.argv[0], waitErr)
	}
	return nil
}

// Consume feeds r through a demuxer until EOF, publishing each frame.
func (p *PipeSource) Consume(r io.Reader) error {
	d := demux.New(p.maxFrame)
	buf := make([]byte, pipeReadSize)

	emit := func(frame []byte) {
		p.frames.Add(1)
		p.pub.Broadcast(frame)
	}

	for {
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := d.Feed(buf[:n], emit); errors.Is(ferr, demux.ErrBufferOverrun) {
				p.overruns.Add(1)
				logger.Warnf("Frame exceeded %d bytes, discarded and resynchronized", p.maxFrame)
			}
		}
		if errors.Is(err, io.EOF) {
			if d.Buffered() > 0 {
				logger.Debugf("Pipe closed with %d bytes of incomplete frame", d.Buffered())
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipe source: read: %w", err)
		}
	}
}

// Stats returns frames emitted and buffer overruns so far.
func (p *PipeSource) Stats() (frames, overruns uint64) {
	return p.frames.Load(), p.overruns.Load()
}
