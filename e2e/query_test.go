package e2e

import (
	"net/http"
	"testing"
)

func TestQuery_InvalidBody(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/query", "not json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestQuery_MissingFields(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/query", `{"query":"What is this document?"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	body := parseJSON(t, resp)
	if body["error"] != "Missing query or geminiFileName." {
		t.Errorf("unexpected error message: %v", body["error"])
	}
}

func TestQuery_EmptyQuery(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/query", `{"query":"","geminiFileName":"files/abc"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestQuery_NoAnalyzerConfigured(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/query", `{"query":"Summarize the document.","geminiFileName":"files/abc"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusInternalServerError)

	body := parseJSON(t, resp)
	if body["code"] != "INVALID_API_KEY" {
		t.Errorf("expected code INVALID_API_KEY, got %v", body["code"])
	}
	if body["error"] != "Failed to get answer from Gemini." {
		t.Errorf("unexpected error message: %v", body["error"])
	}
}
