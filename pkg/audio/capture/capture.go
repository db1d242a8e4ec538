// Package capture wraps the platform audio input device and exposes it as a
// lazy stream of raw audio blocks.
//
// A Source owns the hardware tap: it reads fixed-duration buffers from the
// device on a background goroutine and delivers them on the Blocks channel
// until Stop is called. Stop deterministically ends the channel, so a
// consumer draining it is guaranteed to observe every captured block.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Block is one capture buffer's worth of samples: one float32 buffer per
// channel, all the same length, plus the device sample rate. A Block is never
// mutated after production.
type Block struct {
	Channels   [][]float32
	SampleRate int
}

// Frames returns the number of frames in the block.
func (b Block) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Options configures a capture source.
type Options struct {
	// Device is the input device name. Empty selects the system default.
	Device string

	// SampleRate is the capture rate in Hz. 0 uses the device default.
	SampleRate int

	// Channels is the channel count. 0 means 1 (mono).
	Channels int

	// BlockDuration is the duration of each block. 0 means 100ms.
	BlockDuration time.Duration
}

// Source captures audio from an input device.
type Source struct {
	stream *portaudio.Stream
	buf    []float32
	rate   int
	chans  int

	blocks   chan Block
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// DeviceInfo describes an audio input device.
type DeviceInfo struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool
}

// Devices returns the available input devices.
func Devices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize audio: %w", err)
	}
	defer portaudio.Terminate()

	all, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	def, _ := portaudio.DefaultInputDevice()

	var devices []DeviceInfo
	for _, d := range all {
		if d.MaxInputChannels <= 0 {
			continue
		}
		devices = append(devices, DeviceInfo{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefault:         def != nil && d.Name == def.Name,
		})
	}
	return devices, nil
}

// findDevice resolves a device name to its info, or the default input device
// for an empty name.
func findDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		return portaudio.DefaultInputDevice()
	}
	all, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range all {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("input device %q not found", name)
}

// Open opens the input device and starts capturing.
//
// An open failure means the device is unavailable or microphone access was
// denied; it is returned before any block is produced.
func Open(opts Options) (*Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize audio: %w", err)
	}
	// The runtime stays initialized for the lifetime of the source; Stop
	// releases it. Failure paths below must not leak it.
	opened := false
	defer func() {
		if !opened {
			portaudio.Terminate()
		}
	}()

	dev, err := findDevice(opts.Device)
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, errors.New("no input device available")
	}

	rate := opts.SampleRate
	if rate <= 0 {
		rate = int(dev.DefaultSampleRate)
	}
	chans := opts.Channels
	if chans <= 0 {
		chans = 1
	}
	if chans > dev.MaxInputChannels {
		return nil, fmt.Errorf("device %q supports at most %d input channels", dev.Name, dev.MaxInputChannels)
	}
	blockDur := opts.BlockDuration
	if blockDur <= 0 {
		blockDur = 100 * time.Millisecond
	}
	frames := int(time.Duration(rate) * blockDur / time.Second)

	s := &Source{
		buf:      make([]float32, frames*chans),
		rate:     rate,
		chans:    chans,
		blocks:   make(chan Block, 8),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = chans
	params.SampleRate = float64(rate)
	params.FramesPerBuffer = frames

	stream, err := portaudio.OpenStream(params, s.buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	s.stream = stream
	opened = true

	go s.readLoop()
	return s, nil
}

// Blocks returns the stream of captured blocks. The channel is closed after
// Stop once every block produced before the stop has been delivered.
func (s *Source) Blocks() <-chan Block {
	return s.blocks
}

// SampleRate returns the capture sample rate in Hz.
func (s *Source) SampleRate() int { return s.rate }

// Channels returns the capture channel count.
func (s *Source) Channels() int { return s.chans }

// readLoop pulls buffers off the device until stopped.
func (s *Source) readLoop() {
	defer close(s.blocks)
	defer close(s.done)

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			// Overflows are recoverable; anything else ends the stream.
			if errors.Is(err, portaudio.InputOverflowed) {
				continue
			}
			return
		}

		// De-interleave into a fresh block; the device buffer is reused by
		// the next read.
		frames := len(s.buf) / s.chans
		block := Block{
			Channels:   make([][]float32, s.chans),
			SampleRate: s.rate,
		}
		for ch := 0; ch < s.chans; ch++ {
			samples := make([]float32, frames)
			for i := 0; i < frames; i++ {
				samples[i] = s.buf[i*s.chans+ch]
			}
			block.Channels[ch] = samples
		}

		select {
		case s.blocks <- block:
		case <-s.stopChan:
			return
		}
	}
}

// Stop stops capturing, releases the device and ends the block channel.
// It is idempotent.
func (s *Source) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.done
		s.stream.Stop()
		err = s.stream.Close()
		portaudio.Terminate()
	})
	return err
}
