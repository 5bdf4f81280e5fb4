package wsbridge

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/wlyh514/discord-llmvc-bot/runtime/transport"
)

// Stream bounds used when SubscribeOptions leaves them unset.
const (
	DefaultEndAfterSilence = time.Second
	DefaultMaxStream       = 30 * time.Second
)

// speakerStream buffers one speaker's audio until it has been silent for
// the configured gap or reached its maximum length.
type speakerStream struct {
	gap   time.Duration
	onEnd func(*speakerStream)

	mu      sync.Mutex
	cond    *sync.Cond
	buf     bytes.Buffer
	ended   bool
	silence *time.Timer
	limit   *time.Timer
}

func newSpeakerStream(opts transport.SubscribeOptions, onEnd func(*speakerStream)) *speakerStream {
	gap := opts.EndAfterSilence
	if gap <= 0 {
		gap = DefaultEndAfterSilence
	}
	maxLen := opts.MaxDuration
	if maxLen <= 0 {
		maxLen = DefaultMaxStream
	}

	s := &speakerStream{gap: gap, onEnd: onEnd}
	s.cond = sync.NewCond(&s.mu)
	s.mu.Lock()
	s.silence = time.AfterFunc(gap, s.finish)
	s.limit = time.AfterFunc(maxLen, s.finish)
	s.mu.Unlock()
	return s
}

func (s *speakerStream) write(p []byte) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.buf.Write(p)
	s.silence.Reset(s.gap)
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *speakerStream) finish() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.silence.Stop()
	s.limit.Stop()
	s.mu.Unlock()
	s.cond.Broadcast()

	if s.onEnd != nil {
		s.onEnd(s)
	}
}

// Read blocks until audio is buffered or the stream has ended.
func (s *speakerStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.buf.Len() == 0 && !s.ended {
		s.cond.Wait()
	}
	if s.buf.Len() == 0 {
		return 0, io.EOF
	}
	return s.buf.Read(p)
}

// Close ends the stream early.
func (s *speakerStream) Close() error {
	s.finish()
	return nil
}
