package relay

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/starford/othala/internal/wire"
)

func TestHTTPClientAgainstHandler(t *testing.T) {
	mem := NewMemory("backing")
	srv := httptest.NewServer(Handler(mem))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	ctx := context.Background()
	priv := testKey(t)

	ev := signedSave(t, priv, "over-http", `{"title":"via http"}`, 123)
	if err := client.Publish(ctx, ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got, err := client.Query(ctx, wire.Filter{Slugs: []string{"over-http"}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].ID != ev.ID {
		t.Fatalf("query returned %+v", got)
	}
	if err := got[0].Verify(); err != nil {
		t.Errorf("event lost integrity over http: %v", err)
	}
}

func TestHTTPHandlerRejectsBadEvents(t *testing.T) {
	srv := httptest.NewServer(Handler(NewMemory("backing")))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	bad := &wire.Event{Kind: wire.KindSave, CreatedAt: 1, Content: "{}", ID: "forged", Sig: "00"}
	if err := client.Publish(context.Background(), bad); err == nil {
		t.Error("forged event should be rejected")
	}
}

func TestHTTPQueryEmptyResult(t *testing.T) {
	srv := httptest.NewServer(Handler(NewMemory("backing")))
	defer srv.Close()

	got, err := NewHTTPClient(srv.URL).Query(context.Background(), wire.Filter{Slugs: []string{"nothing"}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no events, got %d", len(got))
	}
}
