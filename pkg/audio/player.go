package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// Player plays mono 16-bit speech through the system audio device.
//
// The underlying device context is a process-wide resource, created lazily
// on first play and held for the life of the process. Playback is
// exclusive: starting a new buffer halts whatever is still playing.
type Player struct {
	mu      sync.Mutex
	ctx     *oto.Context
	rate    int
	current *oto.Player
}

// NewPlayer returns a player. The audio device is not opened until the
// first Play call.
func NewPlayer() *Player {
	return &Player{}
}

// Play starts playback of buf, stopping any in-flight playback first so at
// most one stream plays at a time. It returns as soon as playback starts.
func (p *Player) Play(buf *Buffer) error {
	if buf.Len() == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureContext(buf.SampleRate); err != nil {
		return err
	}
	if buf.SampleRate != p.rate {
		return fmt.Errorf("audio: device opened at %d Hz, buffer is %d Hz", p.rate, buf.SampleRate)
	}

	if p.current != nil {
		p.current.Close()
		p.current = nil
	}

	pcm := make([]byte, buf.Len()*2)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(quantizeSample(s)))
	}

	player := p.ctx.NewPlayer(bytes.NewReader(pcm))
	player.Play()
	p.current = player
	return nil
}

// Stop halts any in-flight playback.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Close()
		p.current = nil
	}
}

// IsPlaying reports whether a stream is currently playing.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil && p.current.IsPlaying()
}

func (p *Player) ensureContext(rate int) error {
	if p.ctx != nil {
		return nil
	}
	op := &oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("open audio device: %w", err)
	}
	<-ready
	p.ctx = ctx
	p.rate = rate
	return nil
}
