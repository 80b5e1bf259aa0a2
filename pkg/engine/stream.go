package engine

import (
	"io"
	"sync"

	"lumen-hq/relay/pkg/oai"
	"lumen-hq/relay/pkg/providers"
)

// peekedStream replays the chunk consumed during the first-chunk peek, then
// delegates to the upstream stream. It owns the credential for the attempt
// and hands it back exactly once, when the stream terminates.
type peekedStream struct {
	inner providers.Stream
	first *oai.ChatCompletionChunk

	finish     func(cause error)
	finishOnce sync.Once
}

func (s *peekedStream) Recv() (oai.ChatCompletionChunk, error) {
	if s.first != nil {
		chunk := *s.first
		s.first = nil
		return chunk, nil
	}
	chunk, err := s.inner.Recv()
	if err != nil {
		if err == io.EOF {
			s.done(nil)
		} else {
			s.done(err)
		}
	}
	return chunk, err
}

func (s *peekedStream) Close() error {
	err := s.inner.Close()
	s.done(nil)
	return err
}

func (s *peekedStream) done(cause error) {
	s.finishOnce.Do(func() {
		s.finish(cause)
	})
}
