package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatEnvelope(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	})
	require.NoError(t, err)
	return body
}

func testBundle() EvidenceBundle {
	return EvidenceBundle{
		FreeText: "fever and sore throat",
		Candidates: []Candidate{
			{Name: "Influenza", ICD10: "J11.1"},
			{Name: "Common cold", ICD10: "J00"},
		},
	}
}

func TestInferParsesContract(t *testing.T) {
	payload := `{
		"priors": {"Influenza": 0.7, "Common cold": 0.3},
		"cond_probs": {"fever_duration": {"Influenza": {"2-4 days": 0.8}}},
		"icd10_map": {"Influenza": "J11.1"}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write(chatEnvelope(t, payload))
	}))
	defer srv.Close()

	client := NewDeepSeekClient("test-key", WithBaseURL(srv.URL))
	result, err := client.Infer(context.Background(), testBundle())

	require.NoError(t, err)
	assert.False(t, result.Degraded)
	assert.InDelta(t, 0.7, result.Priors["Influenza"], 1e-9)
	assert.InDelta(t, 0.8, result.CondProbs.CondProb("fever_duration", "Influenza", "2-4 days"), 1e-9)
	// Missing icd10_map entries are backfilled from the candidate list.
	assert.Equal(t, "J00", result.CodeMap["Common cold"])
}

func TestInferMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatEnvelope(t, "I am sorry, I cannot answer that."))
	}))
	defer srv.Close()

	client := NewDeepSeekClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Infer(context.Background(), testBundle())

	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestInferMissingKeys(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"no priors", `{"cond_probs": {}, "icd10_map": {}}`},
		{"no cond_probs", `{"priors": {"Influenza": 0.5}, "icd10_map": {}}`},
		{"negative prior", `{"priors": {"Influenza": -0.5}, "cond_probs": {}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write(chatEnvelope(t, tc.payload))
			}))
			defer srv.Close()

			client := NewDeepSeekClient("test-key", WithBaseURL(srv.URL))
			_, err := client.Infer(context.Background(), testBundle())

			assert.ErrorIs(t, err, ErrInvalidResponse)
		})
	}
}

func TestInferServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewDeepSeekClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Infer(context.Background(), testBundle())

	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestInferTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := NewDeepSeekClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Infer(context.Background(), testBundle())

	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestUniform(t *testing.T) {
	result := Uniform(testBundle().Candidates)

	assert.True(t, result.Degraded)
	assert.InDelta(t, 0.5, result.Priors["Influenza"], 1e-9)
	assert.InDelta(t, 0.5, result.Priors["Common cold"], 1e-9)
	assert.Equal(t, "J11.1", result.CodeMap["Influenza"])
	// No conditionals: downstream defaulting applies.
	assert.InDelta(t, 0.5, result.CondProbs.CondProb("anything", "Influenza", "yes"), 1e-9)
}

func TestUniformEmptyCandidates(t *testing.T) {
	result := Uniform(nil)

	assert.True(t, result.Degraded)
	assert.Empty(t, result.Priors)
}
