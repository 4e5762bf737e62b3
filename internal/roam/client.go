// Package roam talks to the Roam Research backend API.
//
// The API is three POST endpoints under /api/graph/{graph}: /q runs a
// datalog query, /pull reads an entity (a block or page subtree), and
// /write applies mutations. All three take the graph token in an
// X-Authorization header.
//
// Plans produced by the diff engine are posted as a single batch-actions
// write, so the backend applies them all-or-nothing. Temporary UIDs
// assigned during planning are replaced with freshly generated ones
// before the write goes out.
package roam

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roamtools/roamsync/internal/block"
	"github.com/roamtools/roamsync/internal/diff"
)

const (
	// DefaultBaseURL is the hosted Roam backend.
	DefaultBaseURL = "https://api.roamresearch.com"

	// pullSelector reads a block subtree to unlimited depth. Children
	// come back unordered; :block/order restores sibling order.
	pullSelector = `[:block/uid :block/string :block/order :block/heading :node/title {:block/children ...}]`
)

// Client is a Roam backend API client for a single graph.
type Client struct {
	// BaseURL may be overridden before the first call, e.g. for a
	// self-hosted backend.
	BaseURL string

	graph      string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the given graph.
func NewClient(graph, token string) *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		graph:   graph,
		token:   token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// PageUID resolves a page title to its block UID, without pulling the
// page body. Returns block.ErrNotFound when no page has the title.
func (c *Client) PageUID(ctx context.Context, title string) (string, error) {
	query := fmt.Sprintf(
		`[:find ?uid . :where [?e :node/title %s] [?e :block/uid ?uid]]`,
		ednString(title),
	)

	var out struct {
		Result *string `json:"result"`
	}
	if err := c.post(ctx, "q", map[string]string{"query": query}, &out); err != nil {
		return "", fmt.Errorf("failed to query page %q: %w", title, err)
	}
	if out.Result == nil {
		return "", block.ErrNotFound
	}
	return *out.Result, nil
}

// FetchBlock pulls the subtree rooted at the given block UID.
func (c *Client) FetchBlock(ctx context.Context, uid string) (*block.Block, error) {
	eid := fmt.Sprintf(`[:block/uid %s]`, ednString(uid))
	b, err := c.pull(ctx, eid)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block %s: %w", uid, err)
	}
	return b, nil
}

// FetchPage pulls a full page subtree by title. The returned root's
// Text is the page title.
func (c *Client) FetchPage(ctx context.Context, title string) (*block.Block, error) {
	eid := fmt.Sprintf(`[:node/title %s]`, ednString(title))
	b, err := c.pull(ctx, eid)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page %q: %w", title, err)
	}
	return b, nil
}

func (c *Client) pull(ctx context.Context, eid string) (*block.Block, error) {
	req := map[string]string{"eid": eid, "selector": pullSelector}

	var out struct {
		Result *pullNode `json:"result"`
	}
	if err := c.post(ctx, "pull", req, &out); err != nil {
		return nil, err
	}
	if out.Result == nil {
		return nil, block.ErrNotFound
	}
	return out.Result.toBlock(), nil
}

// Apply posts a plan as one batch-actions write. Temporary UIDs from
// planning are replaced with generated ones, consistently across the
// whole batch, before anything is sent. A failed write leaves the graph
// untouched.
func (c *Client) Apply(ctx context.Context, actions []diff.Action) error {
	if len(actions) == 0 {
		return nil
	}

	fresh := make(map[string]string)
	assign := func(uid string) string {
		if !diff.IsTempUID(uid) {
			return uid
		}
		if u, ok := fresh[uid]; ok {
			return u
		}
		u := uuid.NewString()
		fresh[uid] = u
		return u
	}

	batch := make([]writeAction, 0, len(actions))
	for _, a := range actions {
		wa, err := encodeAction(a, assign)
		if err != nil {
			return err
		}
		batch = append(batch, wa)
	}

	req := map[string]any{"action": "batch-actions", "actions": batch}
	if err := c.post(ctx, "write", req, nil); err != nil {
		return fmt.Errorf("failed to apply %d actions: %w", len(actions), err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/api/graph/%s/%s", c.BaseURL, c.graph, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("roam API error %d: %s", e.StatusCode, e.Body)
}

// pullNode is the wire shape of a /pull result entity.
type pullNode struct {
	UID      string     `json:":block/uid"`
	Title    string     `json:":node/title"`
	Text     string     `json:":block/string"`
	Order    int        `json:":block/order"`
	Heading  int        `json:":block/heading"`
	Children []pullNode `json:":block/children"`
}

func (n *pullNode) toBlock() *block.Block {
	b := &block.Block{UID: n.UID}
	if n.Title != "" {
		b.Text = n.Title
	} else {
		b.Attrs.Todo, b.Text = block.SplitTodo(n.Text)
	}
	b.Attrs.Heading = n.Heading

	sort.SliceStable(n.Children, func(i, j int) bool {
		return n.Children[i].Order < n.Children[j].Order
	})
	for i := range n.Children {
		b.Children = append(b.Children, n.Children[i].toBlock())
	}
	return b
}

// writeAction is the wire shape of one entry in a batch-actions write.
type writeAction struct {
	Action   string         `json:"action"`
	Page     map[string]any `json:"page,omitempty"`
	Block    map[string]any `json:"block,omitempty"`
	Location map[string]any `json:"location,omitempty"`
}

func encodeAction(a diff.Action, assign func(string) string) (writeAction, error) {
	switch a.Op {
	case diff.OpCreatePage:
		return writeAction{
			Action: "create-page",
			Page:   map[string]any{"title": a.Title, "uid": assign(a.UID)},
		}, nil
	case diff.OpCreateBlock:
		return writeAction{
			Action:   "create-block",
			Location: map[string]any{"parent-uid": assign(a.ParentUID), "order": a.Order},
			Block:    blockPayload(assign(a.UID), a.Text, a.Attrs),
		}, nil
	case diff.OpUpdateBlock:
		return writeAction{
			Action: "update-block",
			Block:  blockPayload(a.UID, a.Text, a.Attrs),
		}, nil
	case diff.OpMoveBlock:
		return writeAction{
			Action:   "move-block",
			Location: map[string]any{"parent-uid": assign(a.ParentUID), "order": a.Order},
			Block:    map[string]any{"uid": a.UID},
		}, nil
	case diff.OpDeleteBlock:
		return writeAction{
			Action: "delete-block",
			Block:  map[string]any{"uid": a.UID},
		}, nil
	default:
		return writeAction{}, fmt.Errorf("unknown action op %q", a.Op)
	}
}

func blockPayload(uid, text string, attrs block.Attrs) map[string]any {
	wire := text
	if attrs.Todo != "" {
		wire = strings.TrimSpace(block.TodoMarker(attrs.Todo) + " " + text)
	}
	p := map[string]any{
		"uid":    uid,
		"string": wire,
	}
	if attrs.Heading > 0 {
		p["heading"] = attrs.Heading
	}
	return p
}

// ednString quotes a string as an EDN literal for use inside a query or
// entity id.
func ednString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
