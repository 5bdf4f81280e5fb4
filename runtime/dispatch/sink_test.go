package dispatch

import (
	"sync"

	"github.com/wlyh514/discord-llmvc-bot/runtime/audio"
)

type frameCounter struct {
	mu sync.Mutex
	n  int
}

func (f *frameCounter) WriteFrame([]byte) error {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
	return nil
}

func (f *frameCounter) OutputFormat() audio.Format { return audio.FormatTTS }

func (f *frameCounter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}
