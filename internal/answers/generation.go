package answers

import (
	"errors"
	"fmt"
	"strings"
)

// Rejection reasons the pipeline reports instead of an answer.
var (
	ErrNotEnoughContext = errors.New("answer pipeline: not enough context")
	ErrNotRelated       = errors.New("answer pipeline: question not related to guru")
)

// RejectionError wraps a pipeline rejection together with the user facing
// message the bots should show verbatim.
type RejectionError struct {
	Reason error
	Msg    string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%v: %s", e.Reason, e.Msg)
}

func (e *RejectionError) Unwrap() error { return e.Reason }

// classifyRejection maps a pipeline message onto a rejection reason.
func classifyRejection(msg string) error {
	lower := strings.ToLower(msg)
	reason := ErrNotEnoughContext
	if strings.Contains(lower, "not related") {
		reason = ErrNotRelated
	}
	return &RejectionError{Reason: reason, Msg: msg}
}

// Generation is a lazily consumed answer stream. Chunks arrive through
// Next; Metadata becomes available only once Next has returned false.
type Generation struct {
	chunks   <-chan string
	meta     *Metadata
	err      error
	done     <-chan struct{}
	consumed bool
	// set by the producer goroutine before closing done
	result *generationResult
}

type generationResult struct {
	meta *Metadata
	err  error
}

// Next returns the next content chunk. The second return is false once
// the stream is exhausted or failed.
func (g *Generation) Next() (string, bool) {
	chunk, ok := <-g.chunks
	if !ok {
		g.finish()
		return "", false
	}
	return chunk, true
}

// Metadata returns the trailing metadata of the stream. Calling it before
// the stream is drained is a programming error and returns an error.
func (g *Generation) Metadata() (*Metadata, error) {
	if !g.consumed {
		return nil, errors.New("generation: metadata requested before stream was drained")
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.meta, nil
}

// Err reports the terminal error of the stream, if any.
func (g *Generation) Err() error {
	if !g.consumed {
		return nil
	}
	return g.err
}

func (g *Generation) finish() {
	if g.consumed {
		return
	}
	<-g.done
	if g.result != nil {
		g.meta = g.result.meta
		g.err = g.result.err
	}
	g.consumed = true
}

// NewStaticGeneration builds an already-materialized generation. It backs
// the answer cache hit path and test doubles.
func NewStaticGeneration(chunks []string, meta *Metadata, err error) *Generation {
	ch := make(chan string, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	done := make(chan struct{})
	close(done)
	return &Generation{
		chunks: ch,
		done:   done,
		result: &generationResult{meta: meta, err: err},
	}
}
