// Package resample converts captured float32 audio blocks into 16-bit
// little-endian PCM at a target rate in a single pass.
//
// Each block is converted independently with a short windowed-sinc kernel, so
// no filter state is carried between calls. This bounds latency at one block
// but means the kernel sees zeros past the block edges; for the block sizes
// used by the capture pipeline the edge error is inaudible.
package resample

import (
	"math"

	"github.com/voicekey/voicekey/pkg/audio/capture"
)

// TargetRate is the wire sample rate expected by the recognition backend.
const TargetRate = 16000

// zeroCrossings is the number of sinc zero crossings on each side of the
// kernel center, measured in output-rate samples.
const zeroCrossings = 8

// Block converts one captured block into interleaved 16-bit signed
// little-endian samples at targetRate, preserving the channel count.
//
// The conversion is band-limited (windowed-sinc decimation, not sample
// dropping) and rounds to nearest when reducing bit depth. The output holds
// floor(frames*targetRate/sourceRate) frames. Degenerate input (no channels
// or no frames) yields an empty, non-nil slice.
func Block(block capture.Block, targetRate int) []byte {
	channels := len(block.Channels)
	frames := block.Frames()
	if channels == 0 || frames == 0 || targetRate <= 0 {
		return []byte{}
	}

	if block.SampleRate == targetRate {
		return quantize(block.Channels, frames)
	}

	outFrames := frames * targetRate / block.SampleRate
	out := make([]byte, outFrames*channels*2)

	// Cutoff at the lower Nyquist frequency, in cycles per input sample.
	ratio := float64(targetRate) / float64(block.SampleRate)
	cutoff := 0.5 * math.Min(1, ratio)
	// Kernel half-width in input samples.
	halfWidth := float64(zeroCrossings) / (2 * cutoff)

	for n := 0; n < outFrames; n++ {
		center := float64(n) / ratio
		lo := int(math.Ceil(center - halfWidth))
		hi := int(math.Floor(center + halfWidth))
		if lo < 0 {
			lo = 0
		}
		if hi >= frames {
			hi = frames - 1
		}

		for ch := 0; ch < channels; ch++ {
			src := block.Channels[ch]
			var acc, norm float64
			for k := lo; k <= hi; k++ {
				w := kernel(float64(k)-center, cutoff, halfWidth)
				acc += float64(src[k]) * w
				norm += w
			}
			// Normalizing by the weight sum keeps unity DC gain even where
			// the kernel is truncated at the block edges.
			if norm != 0 {
				acc /= norm
			}
			putSample(out, (n*channels+ch)*2, acc)
		}
	}

	return out
}

// kernel evaluates the Hann-windowed sinc low-pass at offset x input samples
// from the kernel center.
func kernel(x, cutoff, halfWidth float64) float64 {
	if math.Abs(x) >= halfWidth {
		return 0
	}
	window := 0.5 + 0.5*math.Cos(math.Pi*x/halfWidth)
	return sinc(2*cutoff*x) * window
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// quantize converts float samples to int16 without rate conversion.
func quantize(channels [][]float32, frames int) []byte {
	out := make([]byte, frames*len(channels)*2)
	for n := 0; n < frames; n++ {
		for ch := range channels {
			putSample(out, (n*len(channels)+ch)*2, float64(channels[ch][n]))
		}
	}
	return out
}

// putSample writes one sample as little-endian int16 with round-to-nearest
// and clipping.
func putSample(out []byte, off int, v float64) {
	s := math.Round(v * 32767)
	if s > 32767 {
		s = 32767
	} else if s < -32768 {
		s = -32768
	}
	u := int16(s)
	out[off] = byte(u)
	out[off+1] = byte(u >> 8)
}
