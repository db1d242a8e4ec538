package capture

import "testing"

func TestDevicesBalancesRuntime(t *testing.T) {
	if _, err := Devices(); err != nil {
		t.Skipf("no audio backend: %v", err)
	}
	// Enumeration releases the runtime; a second enumeration must still work.
	if _, err := Devices(); err != nil {
		t.Fatalf("Devices() after release error = %v", err)
	}
}

func TestOpenStopReleasesRuntime(t *testing.T) {
	src, err := Open(Options{})
	if err != nil {
		t.Skipf("no input device: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	// Stop released the runtime; it must reinitialize cleanly.
	if _, err := Devices(); err != nil {
		t.Fatalf("Devices() after Stop error = %v", err)
	}
}

func TestBlockFrames(t *testing.T) {
	tests := []struct {
		name  string
		block Block
		want  int
	}{
		{name: "empty", block: Block{}, want: 0},
		{name: "mono", block: Block{Channels: [][]float32{make([]float32, 480)}}, want: 480},
		{name: "stereo", block: Block{Channels: [][]float32{make([]float32, 256), make([]float32, 256)}}, want: 256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.block.Frames(); got != tt.want {
				t.Errorf("Frames() = %d, want %d", got, tt.want)
			}
		})
	}
}
