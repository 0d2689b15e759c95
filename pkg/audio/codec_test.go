package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestDecodeSamplesNormalizes(t *testing.T) {
	// 0x4000 = 16384 → 0.5; 0x8000 = -32768 → -1.0.
	data := []byte{0x00, 0x40, 0x00, 0x80}
	buf, err := DecodeSamples(data, 24000)
	if err != nil {
		t.Fatalf("DecodeSamples: %v", err)
	}
	if buf.Len() != 2 {
		t.Fatalf("len = %d, want 2", buf.Len())
	}
	if buf.Data[0] != 0.5 {
		t.Errorf("sample 0 = %v, want 0.5", buf.Data[0])
	}
	if buf.Data[1] != -1.0 {
		t.Errorf("sample 1 = %v, want -1.0", buf.Data[1])
	}
}

func TestDecodeSamplesOddLength(t *testing.T) {
	_, err := DecodeSamples([]byte{0x00, 0x40, 0x7f}, 24000)
	if err == nil {
		t.Fatal("expected error for odd byte count")
	}
	var malformed *MalformedAudioError
	if !errors.As(err, &malformed) {
		t.Fatalf("error type = %T, want *MalformedAudioError", err)
	}
	if malformed.ByteLen != 3 {
		t.Errorf("byte len = %d, want 3", malformed.ByteLen)
	}
}

// Encoding then decoding a buffer must reproduce every sample within two
// quantization steps (one for truncation, one for the 32767/32768 scale
// asymmetry).
func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := &Buffer{SampleRate: 24000, Data: make([]float64, 1000)}
	for i := range src.Data {
		src.Data[i] = math.Sin(float64(i) / 30.0)
	}

	wavData := EncodeWAV(src)
	decoded, err := DecodeSamples(wavData[44:], src.SampleRate)
	if err != nil {
		t.Fatalf("DecodeSamples: %v", err)
	}
	if decoded.Len() != src.Len() {
		t.Fatalf("len = %d, want %d", decoded.Len(), src.Len())
	}

	const step = 2.0 / 32768.0
	for i := range src.Data {
		if diff := math.Abs(decoded.Data[i] - src.Data[i]); diff > step {
			t.Fatalf("sample %d: %v vs %v (diff %v)", i, decoded.Data[i], src.Data[i], diff)
		}
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	buf := &Buffer{SampleRate: 24000, Data: []float64{0, 0.5, -0.5, 1, -1}}
	out := EncodeWAV(buf)

	dataLen := len(buf.Data) * 2
	if len(out) != 44+dataLen {
		t.Fatalf("total length = %d, want %d", len(out), 44+dataLen)
	}

	checks := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"RIFF id", out[0:4], []byte("RIFF")},
		{"WAVE id", out[8:12], []byte("WAVE")},
		{"fmt id", out[12:16], []byte("fmt ")},
		{"data id", out[36:40], []byte("data")},
	}
	for _, c := range checks {
		if !bytes.Equal(c.got, c.want) {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}

	if got := binary.LittleEndian.Uint32(out[4:8]); got != uint32(36+dataLen) {
		t.Errorf("riff size = %d, want %d", got, 36+dataLen)
	}
	if got := binary.LittleEndian.Uint16(out[20:22]); got != 1 {
		t.Errorf("audio format = %d, want 1 (PCM)", got)
	}
	if got := binary.LittleEndian.Uint16(out[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(out[24:28]); got != 24000 {
		t.Errorf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(out[28:32]); got != 48000 {
		t.Errorf("byte rate = %d, want 48000", got)
	}
	if got := binary.LittleEndian.Uint16(out[32:34]); got != 2 {
		t.Errorf("block align = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint16(out[34:36]); got != 16 {
		t.Errorf("bits per sample = %d, want 16", got)
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != uint32(dataLen) {
		t.Errorf("data size = %d, want %d", got, dataLen)
	}
}

func TestQuantizeAsymmetricScaling(t *testing.T) {
	cases := []struct {
		in   float64
		want int16
	}{
		{1.0, 32767},
		{-1.0, -32768},
		{0.5, 16383},
		{-0.5, -16384},
		{0, 0},
		{2.0, 32767},   // clamp high
		{-2.0, -32768}, // clamp low
	}
	for _, c := range cases {
		if got := quantizeSample(c.in); got != c.want {
			t.Errorf("quantizeSample(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestConcatenate(t *testing.T) {
	a := &Buffer{SampleRate: 24000, Data: []float64{0.1, 0.2}}
	b := &Buffer{SampleRate: 24000, Data: []float64{0.3}}

	out, err := Concatenate([]*Buffer{a, b})
	if err != nil {
		t.Fatalf("Concatenate: %v", err)
	}
	if out.Len() != 3 {
		t.Fatalf("len = %d, want 3", out.Len())
	}
	if out.Data[2] != 0.3 {
		t.Errorf("order broken: %v", out.Data)
	}

	// Duration of the whole equals the sum of the parts.
	if got, want := out.Duration(), a.Duration()+b.Duration(); math.Abs(got-want) > 1e-12 {
		t.Errorf("duration = %v, want %v", got, want)
	}
}

func TestConcatenateEmpty(t *testing.T) {
	out, err := Concatenate(nil)
	if err != nil {
		t.Fatalf("Concatenate(nil): %v", err)
	}
	if out != nil {
		t.Errorf("out = %v, want nil", out)
	}
}

func TestConcatenateSampleRateMismatch(t *testing.T) {
	a := &Buffer{SampleRate: 24000, Data: []float64{0.1}}
	b := &Buffer{SampleRate: 16000, Data: []float64{0.2}}

	_, err := Concatenate([]*Buffer{a, b})
	var mismatch *SampleRateMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error type = %T, want *SampleRateMismatchError", err)
	}
	if mismatch.Want != 24000 || mismatch.Got != 16000 {
		t.Errorf("mismatch = %+v", mismatch)
	}
}

func TestTranscodeToWAVBase64(t *testing.T) {
	src := &Buffer{SampleRate: 24000, Data: []float64{0, 0.25, -0.25, 0.5}}
	wavData := EncodeWAV(src)

	b64, err := TranscodeToWAVBase64(wavData, "audio/wav")
	if err != nil {
		t.Fatalf("TranscodeToWAVBase64: %v", err)
	}

	out, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("output not base64: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("RIFF")) {
		t.Error("output is not a WAV file")
	}

	decoded, err := DecodeSamples(out[44:], 24000)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if decoded.Len() != src.Len() {
		t.Errorf("len = %d, want %d", decoded.Len(), src.Len())
	}
}

func TestTranscodeUnsupportedMIME(t *testing.T) {
	_, err := TranscodeToWAVBase64([]byte{0x1a, 0x45, 0xdf, 0xa3}, "audio/webm")
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error type = %T, want *DecodeError", err)
	}
	if decodeErr.MIMEType != "audio/webm" {
		t.Errorf("mime = %q", decodeErr.MIMEType)
	}
}

func TestTranscodeCorruptWAV(t *testing.T) {
	_, err := TranscodeToWAVBase64([]byte("RIFFgarbage-not-a-wav-file"), "audio/wav")
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error type = %T, want *DecodeError", err)
	}
}
