package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"diagnosis-engine/internal/bayes"
)

const (
	defaultBaseURL = "https://api.deepseek.com"
	defaultModel   = "deepseek-chat"
)

// DeepSeekClient calls the DeepSeek chat-completions API in JSON mode and
// parses the strict {priors, cond_probs, icd10_map} contract out of the
// model's reply.
type DeepSeekClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type DeepSeekOption func(*DeepSeekClient)

func WithBaseURL(url string) DeepSeekOption {
	return func(c *DeepSeekClient) { c.baseURL = url }
}

func WithModel(model string) DeepSeekOption {
	return func(c *DeepSeekClient) { c.model = model }
}

func WithHTTPClient(hc *http.Client) DeepSeekOption {
	return func(c *DeepSeekClient) { c.httpClient = hc }
}

func NewDeepSeekClient(apiKey string, opts ...DeepSeekOption) *DeepSeekClient {
	c := &DeepSeekClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type oraclePayload struct {
	Priors    map[string]float64 `json:"priors"`
	CondProbs bayes.CondProbs    `json:"cond_probs"`
	ICD10Map  map[string]string  `json:"icd10_map"`
}

func (c *DeepSeekClient) Infer(ctx context.Context, bundle EvidenceBundle) (*Result, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(bundle)},
		},
		Temperature: 0,
	}
	reqBody.ResponseFormat.Type = "json_object"

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrInvalidResponse, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, body)
	}

	var envelope chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrInvalidResponse, err)
	}
	if len(envelope.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrInvalidResponse)
	}

	return parsePayload(envelope.Choices[0].Message.Content, bundle.Candidates)
}

// parsePayload validates the model output against the contract. Missing
// icd10_map entries are backfilled from the candidate list; missing priors or
// cond_probs fail the call so the caller can fall back to Uniform.
func parsePayload(content string, candidates []Candidate) (*Result, error) {
	var payload oraclePayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("%w: parse payload: %v", ErrInvalidResponse, err)
	}
	if payload.Priors == nil {
		return nil, fmt.Errorf("%w: missing priors", ErrInvalidResponse)
	}
	if payload.CondProbs == nil {
		return nil, fmt.Errorf("%w: missing cond_probs", ErrInvalidResponse)
	}

	for d, p := range payload.Priors {
		if p < 0 {
			return nil, fmt.Errorf("%w: negative prior for %s", ErrInvalidResponse, d)
		}
	}

	codeMap := payload.ICD10Map
	if codeMap == nil {
		codeMap = make(map[string]string, len(candidates))
	}
	for _, c := range candidates {
		if _, ok := codeMap[c.Name]; !ok {
			codeMap[c.Name] = c.ICD10
		}
	}

	return &Result{
		Priors:    payload.Priors,
		CondProbs: payload.CondProbs,
		CodeMap:   codeMap,
	}, nil
}
