package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instabids/bidcard-cli/internal/bidcard"
	"github.com/instabids/bidcard-cli/internal/config"
	"github.com/instabids/bidcard-cli/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := store.NewMemory()
	t.Cleanup(func() { st.Close() })

	svc := bidcard.NewService(st)
	srv := httptest.NewServer(newRouter(svc, config.ServerConfig{
		AllowedOrigins: []string{"*"},
	}))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateCardEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/bid-cards", map[string]string{
		"conversation_id": "conv-1",
		"session_id":      "sess-1",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var card struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeBody(t, resp, &card)
	assert.NotEmpty(t, card.ID)
	assert.Equal(t, "draft", card.Status)
}

func TestCreateCardMissingConversation(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/bid-cards", map[string]string{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	// Create.
	resp := postJSON(t, srv.URL+"/api/bid-cards", map[string]string{"conversation_id": "conv-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var card struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &card)

	// Bulk merge extracted fields.
	resp = postJSON(t, srv.URL+"/api/bid-cards/"+card.ID+"/fields", map[string]any{
		"fields": map[string]any{
			"project_type":  "bathroom_remodel",
			"zip_code":      "10001",
			"email_address": "homeowner@example.com",
			"urgency_level": "week",
			"budget_min":    30000,
		},
		"source": "ai_extraction",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var merged map[string]int
	decodeBody(t, resp, &merged)
	assert.Equal(t, 5, merged["fields_applied"])

	// Status shows the one missing required field.
	resp, err := http.Get(srv.URL + "/api/bid-cards/" + card.ID + "/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		Card struct {
			Status string `json:"status"`
		} `json:"bid_card"`
		MissingFields []string `json:"missing_fields"`
	}
	decodeBody(t, resp, &status)
	assert.Equal(t, "draft", status.Card.Status)
	assert.Equal(t, []string{"description"}, status.MissingFields)

	// Write the missing field.
	resp = postJSON(t, srv.URL+"/api/bid-cards/"+card.ID+"/fields/description", map[string]any{
		"field_value": "full gut renovation",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var write struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &write)
	assert.Equal(t, "ready", write.Status)

	// Convert without a user fails.
	resp = postJSON(t, srv.URL+"/api/bid-cards/"+card.ID+"/convert", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Convert with a user from the header.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/bid-cards/"+card.ID+"/convert", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-1")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var converted struct {
		OfficialBidCardID string `json:"official_bid_card_id"`
		BidNumber         string `json:"bid_number"`
		AlreadyConverted  bool   `json:"already_converted"`
	}
	decodeBody(t, resp, &converted)
	assert.NotEmpty(t, converted.OfficialBidCardID)
	assert.NotEmpty(t, converted.BidNumber)
	assert.False(t, converted.AlreadyConverted)

	// Repeat conversion is idempotent.
	resp = postJSON(t, srv.URL+"/api/bid-cards/"+card.ID+"/convert", map[string]string{"user_id": "user-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var again struct {
		OfficialBidCardID string `json:"official_bid_card_id"`
		AlreadyConverted  bool   `json:"already_converted"`
	}
	decodeBody(t, resp, &again)
	assert.True(t, again.AlreadyConverted)
	assert.Equal(t, converted.OfficialBidCardID, again.OfficialBidCardID)

	// The official card is readable.
	resp, err = http.Get(srv.URL + "/api/official-cards/" + converted.OfficialBidCardID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var official struct {
		BidNumber string `json:"bid_number"`
		Document  struct {
			BudgetDetails map[string]any `json:"budget_details"`
		} `json:"bid_document"`
	}
	decodeBody(t, resp, &official)
	assert.Equal(t, converted.BidNumber, official.BidNumber)
	assert.Equal(t, float64(30000), official.Document.BudgetDetails["budget_min"])

	// Writes after conversion are conflicts.
	resp = postJSON(t, srv.URL+"/api/bid-cards/"+card.ID+"/fields/budget_notes", map[string]any{
		"field_value": "too late",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestLookupEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/bid-cards", map[string]string{"conversation_id": "conv-7"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var card struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &card)

	resp, err := http.Get(srv.URL + "/api/bid-cards/lookup?conversation_id=conv-7")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &found)
	assert.Equal(t, card.ID, found.ID)

	resp, err = http.Get(srv.URL + "/api/bid-cards/lookup?conversation_id=conv-unknown")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/bid-cards/lookup")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/bid-cards", map[string]string{"conversation_id": "conv-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var card struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &card)

	// Unknown field name -> 400 with a structured code.
	resp = postJSON(t, srv.URL+"/api/bid-cards/"+card.ID+"/fields/bogus_field", map[string]any{
		"field_value": "x",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var pe struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &pe)
	assert.Equal(t, "unknown_field", pe.Code)

	// Converting an incomplete draft -> 422 with the missing field list.
	resp = postJSON(t, srv.URL+"/api/bid-cards/"+card.ID+"/convert", map[string]string{"user_id": "user-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var missing struct {
		Code          string   `json:"code"`
		MissingFields []string `json:"missing_fields"`
	}
	decodeBody(t, resp, &missing)
	assert.Equal(t, "missing_fields", missing.Code)
	assert.Len(t, missing.MissingFields, 5)

	// Unknown card id -> 404.
	resp, err := http.Get(srv.URL + "/api/bid-cards/no-such-card/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/official-cards/no-such-card")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestRateLimit(t *testing.T) {
	st := store.NewMemory()
	t.Cleanup(func() { st.Close() })

	srv := httptest.NewServer(newRouter(bidcard.NewService(st), config.ServerConfig{
		RatePerSecond:  1,
		RateBurst:      2,
		AllowedOrigins: []string{"*"},
	}))
	t.Cleanup(srv.Close)

	limited := false
	for i := 0; i < 5; i++ {
		resp, err := http.Get(fmt.Sprintf("%s/health", srv.URL))
		require.NoError(t, err)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited, "burst of requests should trip the limiter")
}
