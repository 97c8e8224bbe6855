package platform

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/gordonklaus/portaudio"
)

const audioChunkFrames = 1024

// paPlayer plays WAV clips through portaudio. One clip plays at a
// time; starting a new one cuts the previous off.
type paPlayer struct {
	dir string

	mu      sync.Mutex
	stop    chan struct{}
	playing bool
}

func newPAPlayer(dir string) (*paPlayer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("can't initialize portaudio: %w", err)
	}
	return &paPlayer{dir: dir}, nil
}

func (p *paPlayer) close() {
	p.StopAudio()
	if err := portaudio.Terminate(); err != nil {
		slog.Error("Error terminating portaudio", "error", err)
	}
}

func (p *paPlayer) Play(clip string, loop bool) error {
	buf, err := wavPCM(clipPath(p.dir, clip))
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.stop != nil {
		close(p.stop)
	}
	stop := make(chan struct{})
	p.stop = stop
	p.playing = true
	p.mu.Unlock()

	go p.stream(buf, loop, stop)
	return nil
}

func (p *paPlayer) StopAudio() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	p.playing = false
}

func (p *paPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *paPlayer) ClipDuration(clip string) (time.Duration, error) {
	return wavDuration(clipPath(p.dir, clip))
}

func (p *paPlayer) stream(buf *audio.IntBuffer, loop bool, stop chan struct{}) {
	channels := buf.Format.NumChannels
	out := make([]int16, audioChunkFrames*channels)
	st, err := portaudio.OpenDefaultStream(0, channels,
		float64(buf.Format.SampleRate), audioChunkFrames, &out)
	if err != nil {
		slog.Error("Can't open audio stream", "error", err)
		p.finish(stop)
		return
	}
	defer st.Close()

	if err := st.Start(); err != nil {
		slog.Error("Can't start audio stream", "error", err)
		p.finish(stop)
		return
	}
	defer st.Stop()

	data := buf.Data
	pos := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		done := false
		for i := range out {
			if pos >= len(data) {
				if loop {
					pos = 0
				} else {
					out[i] = 0
					done = true
					continue
				}
			}
			out[i] = int16(data[pos])
			pos++
		}
		if err := st.Write(); err != nil {
			slog.Debug("Audio write failed", "error", err)
		}
		if done {
			break
		}
	}
	p.finish(stop)
}

// finish clears the playing flag unless another clip has taken over.
func (p *paPlayer) finish(stop chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		select {
		case <-p.stop:
			// Already superseded or stopped.
		default:
			if p.stop == stop {
				p.playing = false
				p.stop = nil
			}
		}
	}
}
