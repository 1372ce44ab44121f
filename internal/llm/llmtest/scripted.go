// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"sandwich/internal/llm"
)

// Reply is one scripted response.
type Reply struct {
	Text string
	Err  error
}

// Scripted returns its replies in order and records every prompt.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	Prompts []llm.Prompt
}

func New(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

// Texts builds a script of successful replies.
func Texts(texts ...string) *Scripted {
	s := &Scripted{}
	for _, t := range texts {
		s.replies = append(s.replies, Reply{Text: t})
	}
	return s
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Complete(_ context.Context, p llm.Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompts = append(s.Prompts, p)
	if len(s.replies) == 0 {
		return "", errors.New("llmtest: script exhausted")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.Text, r.Err
}

// Calls reports how many prompts were received.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Prompts)
}
