package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// clipPath resolves a configured clip name below the sound directory.
func clipPath(dir, name string) string {
	return filepath.Join(dir, name)
}

// wavDuration reads a WAV file's header and sample count and returns
// the playback duration without decoding the audio into memory.
func wavDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("can't open clip %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	d, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("can't read clip %s: %w", path, err)
	}
	return d, nil
}

// wavPCM decodes a WAV file fully into an int buffer for playback.
func wavPCM(path string) (*audio.IntBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't open clip %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("can't decode clip %s: %w", path, err)
	}
	return buf, nil
}
