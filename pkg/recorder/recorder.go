// Package recorder orchestrates one push-to-talk capture-to-transcription
// cycle: microphone blocks are resampled to the wire format and forwarded to
// a streaming recognition session, with a drain-before-terminate guarantee on
// stop.
package recorder

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voicekey/voicekey/pkg/audio/capture"
	"github.com/voicekey/voicekey/pkg/audio/resample"
	"github.com/voicekey/voicekey/pkg/volcasr"
)

// BlockSource is the capture side of the pipeline. Stop must deterministically
// end the Blocks channel.
type BlockSource interface {
	Blocks() <-chan capture.Block
	Stop() error
}

// ChunkSink is the transport side of the pipeline.
type ChunkSink interface {
	SendAudio(ctx context.Context, audio []byte, isLast bool) error
}

// Options configures one recording cycle.
type Options struct {
	// Device is the input device name. Empty selects the system default.
	Device string

	// BlockDuration is the capture block duration. 0 means 100ms.
	BlockDuration time.Duration

	// Stream is the recognition configuration. Sample rate, bit depth and
	// format are overridden to match the pipeline output.
	Stream volcasr.StreamConfig
}

// Recorder runs the pipeline between a block source and a chunk sink for
// exactly one recording cycle.
type Recorder struct {
	source BlockSource
	sink   ChunkSink
	closer io.Closer // the session, when wired by Start

	packets atomic.Uint64

	done     chan struct{}
	stopOnce sync.Once
	stopErr  error

	mu      sync.Mutex
	pipeErr error
}

// Start runs one capture-to-transcription cycle.
//
// It opens the microphone (failing fast if the device is unavailable or
// access is denied), opens a recognition session - stopping the already
// started capture if the handshake fails - and launches the pipeline. The
// returned iterator begins yielding results immediately, while audio is
// still being captured.
func Start(ctx context.Context, client *volcasr.Client, opts Options) (*Recorder, iter.Seq2[*volcasr.Result, error], error) {
	source, err := capture.Open(capture.Options{
		Device:        opts.Device,
		Channels:      1,
		BlockDuration: opts.BlockDuration,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open microphone: %w", err)
	}

	cfg := opts.Stream
	cfg.Format = "pcm"
	cfg.SampleRate = resample.TargetRate
	cfg.Bits = 16
	cfg.Channels = 1

	session, err := client.OpenStream(ctx, &cfg)
	if err != nil {
		// Never leave the capture device open on session failure.
		source.Stop()
		return nil, nil, err
	}

	r := New(ctx, source, session)
	r.closer = session
	return r, session.Recv(), nil
}

// New wires a pipeline between source and sink and starts it. Callers that
// need the full cycle should use Start; New exists for composing with custom
// sources and sinks.
func New(ctx context.Context, source BlockSource, sink ChunkSink) *Recorder {
	r := &Recorder{
		source: source,
		sink:   sink,
		done:   make(chan struct{}),
	}
	go r.run(ctx)
	return r
}

// run is the pipeline task: it consumes capture blocks in order, resamples
// each and forwards the chunk. It exits when the source channel ends.
func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)

	forwarding := true
	for block := range r.source.Blocks() {
		if !forwarding {
			// Keep consuming so a stopping source can drain, but forward
			// nothing after cancellation or a send failure.
			continue
		}
		if ctx.Err() != nil {
			r.setPipeErr(volcasr.ErrCancelled)
			forwarding = false
			continue
		}

		chunk := resample.Block(block, resample.TargetRate)
		if len(chunk) == 0 {
			continue
		}
		if err := r.sink.SendAudio(ctx, chunk, false); err != nil {
			slog.Error("recorder: forward chunk", "error", err)
			r.setPipeErr(err)
			forwarding = false
			continue
		}
		r.packets.Add(1)
	}
}

func (r *Recorder) setPipeErr(err error) {
	r.mu.Lock()
	if r.pipeErr == nil {
		r.pipeErr = err
	}
	r.mu.Unlock()
}

// Err returns the first pipeline error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipeErr
}

// Packets returns the number of chunks forwarded so far. Safe to poll from
// another goroutine for progress display.
func (r *Recorder) Packets() uint64 {
	return r.packets.Load()
}

// Stop ends the cycle in order: stop the capture source, wait for the
// pipeline to finish every already-produced block, and only then send the
// terminal end-of-audio marker. Results keep arriving on the iterator
// returned by Start until the terminal result.
//
// Stop is idempotent; subsequent calls return the first outcome.
func (r *Recorder) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		r.source.Stop()
		<-r.done

		if err := r.Err(); err != nil {
			r.stopErr = err
			return
		}
		r.stopErr = r.sink.SendAudio(ctx, nil, true)
	})
	return r.stopErr
}

// Abort tears the cycle down without the end-of-audio marker: capture stops,
// the pipeline drains, and the session is closed cleanly. Used when the
// caller cancels mid-session.
func (r *Recorder) Abort() {
	r.stopOnce.Do(func() {
		r.source.Stop()
		<-r.done
		r.stopErr = volcasr.ErrCancelled
	})
	if r.closer != nil {
		r.closer.Close()
	}
}
