// Package faq answers free-text questions from a knowledge base and keeps
// the follow-up context between turns.
package faq

import (
	"context"
	"fmt"
	"sort"

	"github.com/m3rciful/roombot/core/locale"
	"github.com/m3rciful/roombot/core/message"
)

// State is the follow-up context carried to the next lookup.
type State struct {
	PreviousQnAID int    `json:"previous_qna_id"`
	PreviousQuery string `json:"previous_query"`
}

// Prompt is a follow-up question suggested by the knowledge base.
type Prompt struct {
	QnAID        int    `json:"qna_id" yaml:"qna_id"`
	DisplayText  string `json:"display_text" yaml:"text"`
	DisplayOrder int    `json:"display_order" yaml:"order"`
}

// Result is the best match returned by a knowledge base.
type Result struct {
	ID      int
	Answer  string
	Score   float64
	Prompts []Prompt
	// NoMatch is set when the knowledge base found nothing for the query.
	NoMatch bool
}

// KnowledgeBase looks up the best answer for a query.
type KnowledgeBase interface {
	Query(ctx context.Context, query string, prior *State) (Result, error)
}

// Texts supplies the localized fallback and hint messages.
type Texts interface {
	Text(id string, data ...map[string]any) string
}

// Responder turns knowledge-base results into replies.
type Responder struct {
	kb    KnowledgeBase
	texts Texts
}

// NewResponder creates a responder backed by kb.
func NewResponder(kb KnowledgeBase, texts Texts) *Responder {
	return &Responder{kb: kb, texts: texts}
}

// Lookup outcomes reported in Reply.Outcome.
const (
	OutcomeAnswered = "answered"
	OutcomeFollowUp = "follow_up"
	OutcomeNoMatch  = "no_match"
)

// Reply is the full result of one lookup turn.
type Reply struct {
	// State is non-nil only when the answer offers follow-up prompts.
	State    *State
	Messages []message.Message
	Outcome  string
	QnAID    int
	Score    float64
}

// Answer performs a single lookup for query. The returned state is non-nil
// only when the answer offers follow-up prompts.
func (r *Responder) Answer(ctx context.Context, query string, prior *State) (*State, []message.Message, error) {
	reply, err := r.Respond(ctx, query, prior)
	if err != nil {
		return prior, nil, err
	}
	return reply.State, reply.Messages, nil
}

// Respond is Answer with the lookup outcome attached.
func (r *Responder) Respond(ctx context.Context, query string, prior *State) (Reply, error) {
	res, err := r.kb.Query(ctx, query, prior)
	if err != nil {
		return Reply{State: prior}, fmt.Errorf("faq: lookup: %w", err)
	}
	reply := Reply{QnAID: res.ID, Score: res.Score}

	if len(res.Prompts) == 0 {
		if res.NoMatch {
			reply.Outcome = OutcomeNoMatch
			reply.Messages = []message.Message{
				message.Text(r.texts.Text(locale.MsgFAQNoMatch)),
				message.Text(r.texts.Text(locale.MsgFAQBackHint)),
			}
			return reply, nil
		}
		reply.Outcome = OutcomeAnswered
		reply.Messages = []message.Message{
			message.Text(res.Answer),
			message.Text(r.texts.Text(locale.MsgFAQAskAgain)),
		}
		return reply, nil
	}

	prompts := append([]Prompt(nil), res.Prompts...)
	sort.SliceStable(prompts, func(i, j int) bool {
		return prompts[i].DisplayOrder < prompts[j].DisplayOrder
	})
	choices := make([]string, 0, len(prompts))
	for _, p := range prompts {
		choices = append(choices, p.DisplayText)
	}

	reply.Outcome = OutcomeFollowUp
	reply.State = &State{PreviousQnAID: res.ID, PreviousQuery: query}
	reply.Messages = []message.Message{message.WithChoices(res.Answer, choices...)}
	return reply, nil
}
