package generation

import (
	"context"
	"sync"

	"github/itish2003/newsrag/models"
)

// Stream is a single-use sequence of answer fragments. Fragments must be
// drained (or Wait called) for the producer to finish.
type Stream struct {
	fragments chan string
	done      chan struct{}
	once      sync.Once

	answer *Answer
	err    error
}

type produceFunc func(ctx context.Context, emit func(string) error) (string, error)

func startStream(ctx context.Context, produce produceFunc, citations []models.Citation) *Stream {
	s := &Stream{
		fragments: make(chan string),
		done:      make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer close(s.fragments)

		text, err := produce(ctx, func(fragment string) error {
			if fragment == "" {
				return nil
			}
			select {
			case s.fragments <- fragment:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			s.err = err
			return
		}
		s.answer = &Answer{Text: text, Citations: citations}
	}()
	return s
}

// Fragments yields the answer text in order. The channel is closed when the
// stream ends, successfully or not.
func (s *Stream) Fragments() <-chan string { return s.fragments }

// Wait discards any undelivered fragments and returns the aggregate answer.
func (s *Stream) Wait() (*Answer, error) {
	s.once.Do(func() {
		for range s.fragments {
		}
	})
	<-s.done
	return s.answer, s.err
}

// StaticStream replays a finished answer as one fragment.
func StaticStream(a *Answer) *Stream {
	return startStream(context.Background(), func(_ context.Context, emit func(string) error) (string, error) {
		return a.Text, emit(a.Text)
	}, a.Citations)
}

// FailedStream is a stream that ends immediately with err.
func FailedStream(err error) *Stream {
	return startStream(context.Background(), func(context.Context, func(string) error) (string, error) {
		return "", err
	}, nil)
}
