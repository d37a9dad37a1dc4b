package pharmacy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRxNormCodeResolvesName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rxcui.json", r.URL.Path)
		assert.Equal(t, "warfarin", r.URL.Query().Get("name"))
		w.Write([]byte(`{"idGroup": {"rxnormId": ["11289"]}}`))
	}))
	defer srv.Close()

	client := NewRxNormClient(srv.URL)
	code, err := client.Code(context.Background(), "warfarin")

	require.NoError(t, err)
	assert.Equal(t, "11289", code)
}

func TestRxNormCodeNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"idGroup": {}}`))
	}))
	defer srv.Close()

	client := NewRxNormClient(srv.URL)
	code, err := client.Code(context.Background(), "no such drug")

	require.NoError(t, err)
	assert.Empty(t, code)
}

func TestRxNormCodeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewRxNormClient(srv.URL)
	_, err := client.Code(context.Background(), "warfarin")

	assert.Error(t, err)
}

func TestRxNormCheckSendsSpaceSeparatedCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/interaction/list.json", r.URL.Path)
		// The server must see the plain space-separated rxcui list.
		assert.Equal(t, "207106 152923", r.URL.Query().Get("rxcuis"))
		w.Write([]byte(`{
			"fullInteractionTypeGroup": [{
				"fullInteractionType": [{
					"interactionPair": [{"severity": "high", "description": "simvastatin + fluconazole"}]
				}]
			}]
		}`))
	}))
	defer srv.Close()

	client := NewRxNormClient(srv.URL)
	result, err := client.Check(context.Background(), []string{"207106", "152923"})

	require.NoError(t, err)
	assert.True(t, result.Risky)
	assert.Equal(t, []string{"simvastatin + fluconazole"}, result.Details)
}

func TestRxNormCheckIgnoresLowSeverity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"fullInteractionTypeGroup": [{
				"fullInteractionType": [{
					"interactionPair": [
						{"severity": "low", "description": "minor finding"},
						{"severity": "N/A", "description": "unrated finding"}
					]
				}]
			}]
		}`))
	}))
	defer srv.Close()

	client := NewRxNormClient(srv.URL)
	result, err := client.Check(context.Background(), []string{"207106", "152923"})

	require.NoError(t, err)
	assert.False(t, result.Risky)
	assert.Empty(t, result.Details)
}

func TestRxNormCheckContraindicatedBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"fullInteractionTypeGroup": [{
				"fullInteractionType": [{
					"interactionPair": [{"severity": "Contraindicated", "description": "do not combine"}]
				}]
			}]
		}`))
	}))
	defer srv.Close()

	client := NewRxNormClient(srv.URL)
	result, err := client.Check(context.Background(), []string{"207106", "152923"})

	require.NoError(t, err)
	assert.True(t, result.Risky)
}
