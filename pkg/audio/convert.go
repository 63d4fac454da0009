package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String renders the format the way it appears in logs, e.g. "48000Hz stereo".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// FormatConverter reshapes capture frames into a target format. One converter
// serves one stream from one goroutine; it remembers what it has already
// warned about, so a mismatched device logs once instead of once per frame.
type FormatConverter struct {
	Target Format

	mismatchLogged bool
	corruptLogged  bool
}

// Convert returns frame reshaped to the target format. A frame already in
// the target format passes through as the same slice. Frames whose byte
// count does not align to int16 samples come back empty, stamped with the
// target format.
func (c *FormatConverter) Convert(frame Frame) Frame {
	if len(frame.Data)%2 != 0 {
		if !c.corruptLogged {
			c.corruptLogged = true
			slog.Warn("audio: dropping misaligned PCM frame",
				"bytes", len(frame.Data),
				"format", Format{SampleRate: frame.SampleRate, Channels: frame.Channels},
			)
		}
		return Frame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	}

	src := Format{SampleRate: frame.SampleRate, Channels: frame.Channels}
	if src == c.Target {
		return frame
	}
	if !c.mismatchLogged {
		c.mismatchLogged = true
		slog.Warn("audio: capture format differs from stream format, converting",
			"from", src,
			"to", c.Target,
		)
	}

	// Reduce channels before resampling and widen after, so the resampler
	// always runs on the narrower layout. Layouts the channel converter
	// cannot bridge pass through with only the rate converted, and the
	// returned frame reports the layout it actually has.
	pcm := frame.Data
	channels := frame.Channels
	if c.Target.Channels == 1 && channels > 1 {
		pcm = ConvertChannels(pcm, channels, 1)
		channels = 1
	}
	pcm = Resample16(pcm, channels, frame.SampleRate, c.Target.SampleRate)
	if channels == 1 && c.Target.Channels > 1 {
		pcm = ConvertChannels(pcm, 1, c.Target.Channels)
		channels = c.Target.Channels
	}

	return Frame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   channels,
		Timestamp:  frame.Timestamp,
	}
}

// ConvertStream reshapes every frame arriving on in and forwards the result
// on the returned channel, which carries the same buffering as in and closes
// when in closes. Misaligned frames are dropped rather than forwarded empty.
func ConvertStream(in <-chan Frame, target Format) <-chan Frame {
	out := make(chan Frame, cap(in))
	go func() {
		defer close(out)
		conv := FormatConverter{Target: target}
		for frame := range in {
			if cf := conv.Convert(frame); len(cf.Data) > 0 {
				out <- cf
			}
		}
	}()
	return out
}

// ConvertChannels rewrites interleaved int16 PCM from one channel count to
// another. Reducing averages all source channels into each output sample;
// widening from mono copies the sample across the target channels. Any
// other combination, and any count below one, returns the input unchanged.
func ConvertChannels(pcm []byte, from, to int) []byte {
	switch {
	case from == to || from < 1 || to < 1:
		return pcm
	case to == 1:
		return mixdown(pcm, from)
	case from == 1:
		return widen(pcm, to)
	default:
		return pcm
	}
}

// mixdown averages n interleaved channels into mono. The mean of int16
// samples cannot leave the int16 range, so no clamping is involved.
func mixdown(pcm []byte, n int) []byte {
	stride := 2 * n
	frames := len(pcm) / stride
	out := make([]byte, frames*2)
	for f := range frames {
		sum := 0
		for ch := range n {
			sum += int(int16(binary.LittleEndian.Uint16(pcm[f*stride+2*ch:])))
		}
		binary.LittleEndian.PutUint16(out[f*2:], uint16(int16(sum/n)))
	}
	return out
}

// widen copies each mono sample across n output channels. A trailing byte
// that does not complete a sample is ignored.
func widen(pcm []byte, n int) []byte {
	samples := len(pcm) / 2
	out := make([]byte, samples*2*n)
	for s := range samples {
		v := binary.LittleEndian.Uint16(pcm[s*2:])
		for ch := range n {
			binary.LittleEndian.PutUint16(out[(s*n+ch)*2:], v)
		}
	}
	return out
}

// Resample16 converts interleaved int16 PCM between sample rates by linear
// interpolation, keeping the channel layout. Equal rates, non-positive
// rates, and inputs shorter than one sample frame return the input
// unchanged.
func Resample16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if channels < 1 || srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	stride := 2 * channels
	srcFrames := len(pcm) / stride
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*stride)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= srcFrames {
			next = idx
		}
		for ch := range channels {
			a := int16(binary.LittleEndian.Uint16(pcm[idx*stride+2*ch:]))
			b := int16(binary.LittleEndian.Uint16(pcm[next*stride+2*ch:]))
			v := int16(math.Round(float64(a)*(1-frac) + float64(b)*frac))
			binary.LittleEndian.PutUint16(out[i*stride+2*ch:], uint16(v))
		}
	}
	return out
}

// Float32ToPCM16 converts 32-bit float samples in the range [-1, 1] to
// little-endian int16 PCM. Samples outside the range are clamped, so a
// backend that overshoots slightly does not wrap around into noise.
// Capture stacks built on PipeWire or WebAudio deliver float32; every STT
// vendor we stream to wants int16.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		scaled := s * 32768
		switch {
		case scaled > 32767:
			scaled = 32767
		case scaled < -32768:
			scaled = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(scaled)))
	}
	return out
}

// Float32BytesToPCM16 converts raw little-endian float32 sample bytes to
// int16 PCM. Trailing bytes that do not form a complete float32 are ignored.
func Float32BytesToPCM16(data []byte) []byte {
	n := len(data) / 4
	samples := make([]float32, n)
	for i := range n {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return Float32ToPCM16(samples)
}
