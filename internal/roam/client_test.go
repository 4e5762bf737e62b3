package roam

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/roamtools/roamsync/internal/block"
	"github.com/roamtools/roamsync/internal/diff"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-graph", "secret-token")
	c.BaseURL = srv.URL
	return c
}

func TestFetchPage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/graph/test-graph/pull" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Authorization"); got != "Bearer secret-token" {
			t.Errorf("auth header = %q", got)
		}
		// Children deliberately out of order.
		io.WriteString(w, `{"result": {
			":block/uid": "page-1",
			":node/title": "Daily Notes",
			":block/children": [
				{":block/uid": "b2", ":block/string": "second", ":block/order": 1},
				{":block/uid": "b1", ":block/string": "{{[[TODO]]}} first", ":block/order": 0,
				 ":block/heading": 2}
			]
		}}`)
	})

	page, err := c.FetchPage(context.Background(), "Daily Notes")
	if err != nil {
		t.Fatalf("FetchPage() failed: %v", err)
	}
	if page.UID != "page-1" || page.Text != "Daily Notes" {
		t.Errorf("root = %q/%q", page.UID, page.Text)
	}
	if len(page.Children) != 2 {
		t.Fatalf("got %d children, want 2", len(page.Children))
	}
	first := page.Children[0]
	if first.UID != "b1" {
		t.Errorf("children not reordered by :block/order, first is %s", first.UID)
	}
	if first.Text != "first" || first.Attrs.Todo != block.TodoOpen || first.Attrs.Heading != 2 {
		t.Errorf("first block = %q attrs=%+v", first.Text, first.Attrs)
	}
}

func TestFetchPage_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"result": null}`)
	})

	_, err := c.FetchPage(context.Background(), "No Such Page")
	if !errors.Is(err, block.ErrNotFound) {
		t.Errorf("got %v, want block.ErrNotFound", err)
	}
}

func TestFetchBlock_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	})

	_, err := c.FetchBlock(context.Background(), "b1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", apiErr.StatusCode)
	}
}

func TestPageUID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `:node/title \"My \\\"Quoted\\\" Page\"`) {
			t.Errorf("title not EDN-escaped in query: %s", body)
		}
		io.WriteString(w, `{"result": "page-uid-1"}`)
	})

	uid, err := c.PageUID(context.Background(), `My "Quoted" Page`)
	if err != nil {
		t.Fatalf("PageUID() failed: %v", err)
	}
	if uid != "page-uid-1" {
		t.Errorf("uid = %q", uid)
	}
}

func TestPageUID_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"result": null}`)
	})

	_, err := c.PageUID(context.Background(), "Missing")
	if !errors.Is(err, block.ErrNotFound) {
		t.Errorf("got %v, want block.ErrNotFound", err)
	}
}

func TestApply(t *testing.T) {
	var got struct {
		Action  string `json:"action"`
		Actions []struct {
			Action   string         `json:"action"`
			Page     map[string]any `json:"page"`
			Block    map[string]any `json:"block"`
			Location map[string]any `json:"location"`
		} `json:"actions"`
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/graph/test-graph/write" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode write body: %v", err)
		}
		io.WriteString(w, `{}`)
	})

	actions := []diff.Action{
		{Op: diff.OpCreateBlock, UID: "tmp-1", ParentUID: "page-1", Order: 0,
			Text: "parent", Attrs: block.Attrs{Heading: 1}},
		{Op: diff.OpCreateBlock, UID: "tmp-2", ParentUID: "tmp-1", Order: 0,
			Text: "child", Attrs: block.Attrs{Todo: block.TodoDone}},
		{Op: diff.OpUpdateBlock, UID: "b9", Text: "edited"},
		{Op: diff.OpMoveBlock, UID: "b9", ParentUID: "page-1", Order: 2},
		{Op: diff.OpDeleteBlock, UID: "b4"},
	}
	if err := c.Apply(context.Background(), actions); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if got.Action != "batch-actions" || len(got.Actions) != 5 {
		t.Fatalf("got action=%q with %d entries", got.Action, len(got.Actions))
	}

	parentUID, _ := got.Actions[0].Block["uid"].(string)
	if parentUID == "" || diff.IsTempUID(parentUID) {
		t.Errorf("temp uid not replaced: %q", parentUID)
	}
	if ref := got.Actions[1].Location["parent-uid"]; ref != parentUID {
		t.Errorf("child parent-uid = %v, want %q", ref, parentUID)
	}
	if s := got.Actions[1].Block["string"]; s != "{{[[DONE]]}} child" {
		t.Errorf("todo marker not rendered: %v", s)
	}
	if h := got.Actions[0].Block["heading"]; h != float64(1) {
		t.Errorf("heading = %v, want 1", h)
	}
	if _, ok := got.Actions[2].Block["heading"]; ok {
		t.Error("zero heading should be omitted")
	}
	if got.Actions[4].Action != "delete-block" || got.Actions[4].Block["uid"] != "b4" {
		t.Errorf("delete entry = %+v", got.Actions[4])
	}
}

func TestApply_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty plan")
	})

	if err := c.Apply(context.Background(), nil); err != nil {
		t.Fatalf("Apply(nil) failed: %v", err)
	}
}
