package faq

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one question/answer pair of a static catalogue.
type Entry struct {
	ID        int      `yaml:"id"`
	Questions []string `yaml:"questions"`
	Answer    string   `yaml:"answer"`
	Prompts   []Prompt `yaml:"prompts"`
}

// StaticKB answers from an in-memory catalogue. Questions match
// case-insensitively after trimming; follow-up prompts of the previous
// answer are matched first by their display text.
type StaticKB struct {
	byID       map[int]Entry
	byQuestion map[string]int
}

// NewStaticKB indexes entries. Duplicate ids or questions are rejected.
func NewStaticKB(entries []Entry) (*StaticKB, error) {
	kb := &StaticKB{
		byID:       make(map[int]Entry, len(entries)),
		byQuestion: make(map[string]int),
	}
	for _, e := range entries {
		if e.ID <= 0 {
			return nil, fmt.Errorf("faq: entry id must be positive, got %d", e.ID)
		}
		if _, dup := kb.byID[e.ID]; dup {
			return nil, fmt.Errorf("faq: duplicate entry id %d", e.ID)
		}
		kb.byID[e.ID] = e
		for _, q := range e.Questions {
			key := normalizeQuestion(q)
			if key == "" {
				continue
			}
			if other, dup := kb.byQuestion[key]; dup {
				return nil, fmt.Errorf("faq: question %q used by entries %d and %d", q, other, e.ID)
			}
			kb.byQuestion[key] = e.ID
		}
	}
	for _, e := range entries {
		for _, p := range e.Prompts {
			if _, ok := kb.byID[p.QnAID]; !ok {
				return nil, fmt.Errorf("faq: entry %d prompt %q points to unknown id %d", e.ID, p.DisplayText, p.QnAID)
			}
		}
	}
	return kb, nil
}

// LoadStaticKB reads a YAML catalogue of entries from path.
func LoadStaticKB(path string) (*StaticKB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("faq: read catalogue: %w", err)
	}
	var doc struct {
		Entries []Entry `yaml:"entries"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("faq: parse catalogue: %w", err)
	}
	return NewStaticKB(doc.Entries)
}

// Query implements KnowledgeBase.
func (kb *StaticKB) Query(_ context.Context, query string, prior *State) (Result, error) {
	key := normalizeQuestion(query)

	if prior != nil {
		if prev, ok := kb.byID[prior.PreviousQnAID]; ok {
			for _, p := range prev.Prompts {
				if normalizeQuestion(p.DisplayText) == key {
					return kb.result(kb.byID[p.QnAID]), nil
				}
			}
		}
	}

	if id, ok := kb.byQuestion[key]; ok {
		return kb.result(kb.byID[id]), nil
	}
	return Result{NoMatch: true}, nil
}

func (kb *StaticKB) result(e Entry) Result {
	return Result{
		ID:      e.ID,
		Answer:  e.Answer,
		Score:   100,
		Prompts: append([]Prompt(nil), e.Prompts...),
	}
}

func normalizeQuestion(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
