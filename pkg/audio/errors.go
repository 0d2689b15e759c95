package audio

import "fmt"

// MalformedAudioError reports a PCM byte buffer that cannot be interpreted
// as 16-bit samples.
type MalformedAudioError struct {
	ByteLen int
}

func (e *MalformedAudioError) Error() string {
	return fmt.Sprintf("audio: malformed PCM input: odd byte count %d", e.ByteLen)
}

// DecodeError reports a recording format the codec cannot decode.
type DecodeError struct {
	MIMEType string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: cannot decode %q: %v", e.MIMEType, e.Err)
	}
	return fmt.Sprintf("audio: cannot decode %q", e.MIMEType)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// SampleRateMismatchError reports concatenation inputs with differing rates.
type SampleRateMismatchError struct {
	Want, Got int
}

func (e *SampleRateMismatchError) Error() string {
	return fmt.Sprintf("audio: sample rate mismatch: %d vs %d", e.Want, e.Got)
}
