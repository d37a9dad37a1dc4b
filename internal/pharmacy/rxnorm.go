package pharmacy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CodeLookup resolves a medication name to a drug code. An empty code with a
// nil error means "not found".
type CodeLookup interface {
	Code(ctx context.Context, name string) (string, error)
}

// InteractionResult is the outcome of one interaction query across a set of
// drug codes.
type InteractionResult struct {
	Risky   bool     `json:"risky"`
	Details []string `json:"details"`
}

// InteractionClient checks a set of drug codes for pairwise interactions.
type InteractionClient interface {
	Check(ctx context.Context, codes []string) (*InteractionResult, error)
}

// RxNormClient talks to an RxNorm-style terminology service for both name
// resolution (rxcui lookup) and interaction checks.
type RxNormClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRxNormClient(baseURL string) *RxNormClient {
	return &RxNormClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type rxcuiResponse struct {
	IDGroup struct {
		RxNormID []string `json:"rxnormId"`
	} `json:"idGroup"`
}

func (c *RxNormClient) Code(ctx context.Context, name string) (string, error) {
	u := fmt.Sprintf("%s/rxcui.json?name=%s&search=1", c.baseURL, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("rxcui lookup for %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("rxcui lookup for %q: status %d: %s", name, resp.StatusCode, body)
	}

	var parsed rxcuiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("rxcui lookup for %q: decode: %w", name, err)
	}
	if len(parsed.IDGroup.RxNormID) == 0 {
		return "", nil
	}
	return parsed.IDGroup.RxNormID[0], nil
}

type interactionResponse struct {
	FullInteractionTypeGroup []struct {
		FullInteractionType []struct {
			InteractionPair []struct {
				Severity    string `json:"severity"`
				Description string `json:"description"`
			} `json:"interactionPair"`
		} `json:"fullInteractionType"`
	} `json:"fullInteractionTypeGroup"`
}

// Check queries the interaction list endpoint. Only pairs reported as high
// severity or contraindicated mark the result risky and are carried in
// Details; lower-severity findings are ignored.
func (c *RxNormClient) Check(ctx context.Context, codes []string) (*InteractionResult, error) {
	// The rxcuis parameter is a space-separated list.
	params := url.Values{"rxcuis": {strings.Join(codes, " ")}}
	u := fmt.Sprintf("%s/interaction/list.json?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("interaction check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("interaction check: status %d: %s", resp.StatusCode, body)
	}

	var parsed interactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("interaction check: decode: %w", err)
	}

	result := &InteractionResult{}
	for _, group := range parsed.FullInteractionTypeGroup {
		for _, it := range group.FullInteractionType {
			for _, pair := range it.InteractionPair {
				severity := strings.ToLower(pair.Severity)
				if severity == "high" || severity == "contraindicated" {
					result.Risky = true
					result.Details = append(result.Details, pair.Description)
				}
			}
		}
	}
	return result, nil
}
