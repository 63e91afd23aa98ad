package faq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// NoMatchAnswer is the display text QnA Maker returns when nothing matched.
const NoMatchAnswer = "No good match found in KB."

// QnAMakerOptions configures the QnA Maker client.
type QnAMakerOptions struct {
	Endpoint        string
	KnowledgeBaseID string
	EndpointKey     string
	Top             int
	Timeout         time.Duration
	HTTPClient      *http.Client
}

// QnAMaker queries a QnA Maker generateAnswer endpoint.
type QnAMaker struct {
	url    string
	key    string
	top    int
	client *http.Client
}

// NewQnAMaker validates opts and returns a client.
func NewQnAMaker(opts QnAMakerOptions) (*QnAMaker, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("faq: qnamaker endpoint is required")
	}
	if strings.TrimSpace(opts.KnowledgeBaseID) == "" {
		return nil, fmt.Errorf("faq: qnamaker knowledge base id is required")
	}
	top := opts.Top
	if top <= 0 {
		top = 1
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     60 * time.Second,
			},
		}
	}
	return &QnAMaker{
		url:    fmt.Sprintf("%s/qnamaker/knowledgebases/%s/generateAnswer", endpoint, opts.KnowledgeBaseID),
		key:    opts.EndpointKey,
		top:    top,
		client: client,
	}, nil
}

type qnaContext struct {
	PreviousQnAID     int    `json:"previousQnAId"`
	PreviousUserQuery string `json:"previousUserQuery"`
}

type qnaRequest struct {
	Question string      `json:"question"`
	Top      int         `json:"top"`
	Context  *qnaContext `json:"context,omitempty"`
}

type qnaPrompt struct {
	DisplayOrder int    `json:"displayOrder"`
	QnAID        int    `json:"qnaId"`
	DisplayText  string `json:"displayText"`
}

type qnaAnswer struct {
	ID      int     `json:"id"`
	Answer  string  `json:"answer"`
	Score   float64 `json:"score"`
	Context *struct {
		Prompts []qnaPrompt `json:"prompts"`
	} `json:"context"`
}

type qnaResponse struct {
	Answers []qnaAnswer `json:"answers"`
}

// Query implements KnowledgeBase.
func (q *QnAMaker) Query(ctx context.Context, query string, prior *State) (Result, error) {
	reqBody := qnaRequest{Question: query, Top: q.top}
	if prior != nil {
		reqBody.Context = &qnaContext{
			PreviousQnAID:     prior.PreviousQnAID,
			PreviousUserQuery: prior.PreviousQuery,
		}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("marshal qnamaker request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create qnamaker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.key != "" {
		req.Header.Set("Authorization", "EndpointKey "+q.key)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("qnamaker request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_, _ = io.Copy(io.Discard, resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read qnamaker response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("qnamaker returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed qnaResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("unmarshal qnamaker response: %w", err)
	}
	if len(parsed.Answers) == 0 {
		return Result{NoMatch: true}, nil
	}

	best := parsed.Answers[0]
	res := Result{
		ID:     best.ID,
		Answer: best.Answer,
		Score:  best.Score,
	}
	if best.Context != nil {
		for _, p := range best.Context.Prompts {
			res.Prompts = append(res.Prompts, Prompt{
				QnAID:        p.QnAID,
				DisplayText:  p.DisplayText,
				DisplayOrder: p.DisplayOrder,
			})
		}
	}
	// The service signals a miss with a sentinel answer.
	if best.Answer == NoMatchAnswer || best.Answer == "" {
		res.NoMatch = true
	}
	return res, nil
}
