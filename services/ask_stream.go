package services

import (
	"context"

	"github/itish2003/newsrag/generation"
	"github/itish2003/newsrag/models"
)

// AskStream delivers an answer as ordered text fragments followed by the
// aggregate result. Either drain Fragments or call Wait; the session stays
// locked until the stream has been persisted.
type AskStream struct {
	fragments chan string
	done      chan struct{}
	result    *models.QueryResult
	err       error
}

func (s *AskStream) Fragments() <-chan string { return s.fragments }

// Wait discards undelivered fragments and returns the aggregate result.
func (s *AskStream) Wait() (*models.QueryResult, error) {
	for range s.fragments {
	}
	<-s.done
	return s.result, s.err
}

// AskStream runs the same pipeline as Ask but streams generation. A cache
// hit is replayed as a single fragment.
func (r *ragServiceImpl) AskStream(ctx context.Context, sessionID, query string) (*AskStream, error) {
	cached, t, err := r.begin(ctx, sessionID, query)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return r.relay(ctx, generation.StaticStream(&generation.Answer{Text: cached.Text, Citations: cached.Citations}),
			func(*generation.Answer, error) (*models.QueryResult, error) { return cached, nil }), nil
	}

	gs := r.generator.GenerateStream(ctx, generation.Request{Query: t.query, Context: t.hits, History: t.history})
	return r.relay(ctx, gs, func(answer *generation.Answer, err error) (*models.QueryResult, error) {
		defer t.release()
		if err != nil {
			return nil, r.stageErr(t, models.ErrGenerationFailed, err)
		}
		return r.finish(context.WithoutCancel(ctx), t, answer)
	}), nil
}

// relay forwards fragments of gs and then completes the stream with
// complete. Fragments stop being forwarded once ctx is done, but complete
// still runs.
func (r *ragServiceImpl) relay(ctx context.Context, gs *generation.Stream, complete func(*generation.Answer, error) (*models.QueryResult, error)) *AskStream {
	s := &AskStream{
		fragments: make(chan string),
		done:      make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		forwarding := true
		for f := range gs.Fragments() {
			if !forwarding {
				continue
			}
			select {
			case s.fragments <- f:
			case <-ctx.Done():
				forwarding = false
			}
		}
		close(s.fragments)
		s.result, s.err = complete(gs.Wait())
	}()
	return s
}
