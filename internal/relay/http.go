package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/othala/internal/wire"
)

// HTTPClient talks to a relay over its HTTP interface: POST /events to
// publish, POST /query to fetch.
type HTTPClient struct {
	base string
	hc   *http.Client
}

// NewHTTPClient returns a client for the relay at base. Per-call
// deadlines come from the caller's context; the transport timeout is a
// last-resort backstop.
func NewHTTPClient(base string) *HTTPClient {
	return &HTTPClient{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) URL() string { return c.base }

func (c *HTTPClient) Publish(ctx context.Context, ev *wire.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("relay %s: encode event: %w", c.base, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/events", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("relay %s: build request: %w", c.base, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("relay %s: publish: %w", c.base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("relay %s: publish rejected: %s: %s", c.base, resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (c *HTTPClient) Query(ctx context.Context, f wire.Filter) ([]*wire.Event, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("relay %s: encode filter: %w", c.base, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("relay %s: build request: %w", c.base, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay %s: query: %w", c.base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("relay %s: query failed: %s: %s", c.base, resp.Status, strings.TrimSpace(string(msg)))
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("relay %s: decode response: %w", c.base, err)
	}
	return out.Events, nil
}

type queryResponse struct {
	Events []*wire.Event `json:"events"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errResponse struct {
	Error string `json:"error"`
}

// Handler exposes any Client over the HTTP relay interface. The dev
// relay binary serves a Memory through it; tests point an HTTPClient at
// it via httptest.
func Handler(c Client) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	})

	r.Post("/events", func(w http.ResponseWriter, req *http.Request) {
		var ev wire.Event
		if err := json.NewDecoder(req.Body).Decode(&ev); err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: "malformed event"})
			return
		}
		if err := c.Publish(req.Context(), &ev); err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	})

	r.Post("/query", func(w http.ResponseWriter, req *http.Request) {
		var f wire.Filter
		if err := json.NewDecoder(req.Body).Decode(&f); err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: "malformed filter"})
			return
		}
		events, err := c.Query(req.Context(), f)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: err.Error()})
			return
		}
		if events == nil {
			events = []*wire.Event{}
		}
		writeJSON(w, http.StatusOK, queryResponse{Events: events})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
