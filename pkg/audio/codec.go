// Package audio converts between raw 16-bit PCM, float sample buffers, and
// the WAV container, and owns local speech playback.
//
// The WAV writer produces the canonical 44-byte mono 16-bit header
// bit-for-bit: exported files are opened by ordinary audio players, so the
// byte layout is load-bearing.
package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"strings"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SynthesisSampleRate is the fixed output rate of the remote speech
// synthesis model.
const SynthesisSampleRate = 24000

// Buffer is a mono float sample buffer with samples in [-1.0, 1.0].
type Buffer struct {
	SampleRate int
	Data       []float64
}

// Len returns the number of samples.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// Duration returns the playback length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate == 0 {
		return 0
	}
	return float64(len(b.Data)) / float64(b.SampleRate)
}

// DecodeSamples reinterprets raw bytes as signed 16-bit little-endian PCM
// and normalizes each sample to [-1.0, 1.0] by dividing by 32768.
// An odd byte count is malformed input, never silently truncated.
func DecodeSamples(data []byte, sampleRate int) (*Buffer, error) {
	if len(data)%2 != 0 {
		return nil, &MalformedAudioError{ByteLen: len(data)}
	}
	if sampleRate <= 0 {
		sampleRate = SynthesisSampleRate
	}

	samples := make([]float64, len(data)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float64(v) / 32768.0
	}

	return &Buffer{SampleRate: sampleRate, Data: samples}, nil
}

// Concatenate joins buffers in order with no gaps. All inputs must share a
// sample rate. An empty input yields nil, not an error.
func Concatenate(buffers []*Buffer) (*Buffer, error) {
	var nonNil []*Buffer
	for _, b := range buffers {
		if b != nil && len(b.Data) > 0 {
			nonNil = append(nonNil, b)
		}
	}
	if len(nonNil) == 0 {
		return nil, nil
	}

	rate := nonNil[0].SampleRate
	total := 0
	for _, b := range nonNil {
		if b.SampleRate != rate {
			return nil, &SampleRateMismatchError{Want: rate, Got: b.SampleRate}
		}
		total += len(b.Data)
	}

	out := &Buffer{SampleRate: rate, Data: make([]float64, 0, total)}
	for _, b := range nonNil {
		out.Data = append(out.Data, b.Data...)
	}
	return out, nil
}

// EncodeWAV emits a canonical mono 16-bit PCM WAV file. Each sample is
// clamped to [-1, 1] and scaled asymmetrically: x32767 for positive values,
// x32768 for negative, so both extremes map onto the int16 range.
func EncodeWAV(buf *Buffer) []byte {
	var sampleCount int
	var rate int = SynthesisSampleRate
	if buf != nil {
		sampleCount = len(buf.Data)
		if buf.SampleRate > 0 {
			rate = buf.SampleRate
		}
	}

	dataLen := sampleCount * 2
	out := make([]byte, 44+dataLen)

	// RIFF chunk descriptor
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataLen))
	copy(out[8:12], "WAVE")

	// fmt sub-chunk
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)              // Sub-chunk size (16 for PCM)
	binary.LittleEndian.PutUint16(out[20:22], 1)               // Audio format (1 = PCM)
	binary.LittleEndian.PutUint16(out[22:24], 1)               // Mono
	binary.LittleEndian.PutUint32(out[24:28], uint32(rate))    // Sample rate
	binary.LittleEndian.PutUint32(out[28:32], uint32(rate*2))  // Byte rate
	binary.LittleEndian.PutUint16(out[32:34], 2)               // Block align
	binary.LittleEndian.PutUint16(out[34:36], 16)              // Bits per sample

	// data sub-chunk
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataLen))

	if buf != nil {
		for i, s := range buf.Data {
			binary.LittleEndian.PutUint16(out[44+i*2:], uint16(quantizeSample(s)))
		}
	}

	return out
}

// quantizeSample clamps and scales one float sample to int16.
func quantizeSample(s float64) int16 {
	if s > 1 {
		s = 1
	}
	if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// TranscodeToWAVBase64 decodes a recorded audio payload, re-encodes it as
// canonical WAV, and base64-encodes the result for submission. Formats the
// decoder does not understand fail with *DecodeError; the caller owns the
// fallback (submit the original bytes with their native MIME type).
func TranscodeToWAVBase64(data []byte, mimeType string) (string, error) {
	buf, err := decodeContainer(data, mimeType)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(EncodeWAV(buf)), nil
}

// decodeContainer decodes a supported container format to a mono Buffer.
func decodeContainer(data []byte, mimeType string) (*Buffer, error) {
	base := mimeType
	if idx := strings.Index(base, ";"); idx != -1 {
		base = base[:idx]
	}
	base = strings.ToLower(strings.TrimSpace(base))

	switch base {
	case "audio/wav", "audio/x-wav", "audio/wave", "":
		// WAV by declaration, or sniffed below.
	default:
		return nil, &DecodeError{MIMEType: mimeType}
	}

	if !bytes.HasPrefix(data, []byte("RIFF")) {
		return nil, &DecodeError{MIMEType: mimeType}
	}

	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, &DecodeError{MIMEType: mimeType}
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, &DecodeError{MIMEType: mimeType, Err: err}
	}

	return downmix(pcm), nil
}

// downmix converts an interleaved int buffer to a mono float Buffer,
// averaging channels.
func downmix(pcm *gaudio.IntBuffer) *Buffer {
	channels := pcm.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	bitDepth := pcm.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))

	frames := len(pcm.Data) / channels
	out := &Buffer{
		SampleRate: pcm.Format.SampleRate,
		Data:       make([]float64, frames),
	}
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(pcm.Data[i*channels+c])
		}
		out.Data[i] = sum / float64(channels) / scale
	}
	return out
}
