package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/roamtools/roamsync/internal/diff"
	roamsync "github.com/roamtools/roamsync/internal/sync"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", log.New(os.Stderr, "[test] ", log.LstdFlags))
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Errorf("Failed to stop server: %v", err)
		}
	})
	time.Sleep(100 * time.Millisecond)
	return server
}

func dial(t *testing.T, server *Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	time.Sleep(100 * time.Millisecond)
	return conn
}

func TestServerStartStop(t *testing.T) {
	server := testServer(t)
	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := testServer(t)

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("health status = %q", body.Status)
	}
}

func TestHandlerBroadcastsPageSync(t *testing.T) {
	server := testServer(t)
	conn := dial(t, server)

	if count := server.ClientCount(); count != 1 {
		t.Fatalf("Expected 1 client, got %d", count)
	}

	handler := NewHandler(server, log.New(os.Stderr, "[test] ", log.LstdFlags))
	handler.OnPageSynced(&roamsync.Result{
		Page:    "Daily Notes",
		Updated: 2,
		Actions: []diff.Action{
			{Op: diff.OpUpdateBlock, UID: "b1", Text: "x"},
			{Op: diff.OpUpdateBlock, UID: "b2", Text: "y"},
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypePageSync {
		t.Fatalf("message type = %s, want %s", msg.Type, MessageTypePageSync)
	}

	var payload PageSyncData
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}
	if payload.Page != "Daily Notes" || payload.Updated != 2 {
		t.Errorf("payload = %+v", payload)
	}

	// The stats message follows.
	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read stats broadcast: %v", err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal stats message: %v", err)
	}
	if msg.Type != MessageTypeStats {
		t.Errorf("second message type = %s, want %s", msg.Type, MessageTypeStats)
	}
}

func TestHandlerSyncError(t *testing.T) {
	server := testServer(t)
	conn := dial(t, server)

	handler := NewHandler(server, nil)
	handler.OnSyncError("Broken Page", "broken.md", errors.New("backend rejected write"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeSyncError {
		t.Fatalf("message type = %s", msg.Type)
	}

	var payload SyncErrorData
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}
	if payload.Page != "Broken Page" || payload.Error != "backend rejected write" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestNilServerHandlerIsNoOp(t *testing.T) {
	handler := NewHandler(nil, nil)
	handler.OnPageSynced(&roamsync.Result{Page: "p"})
	handler.OnSyncError("p", "", errors.New("x"))
	handler.OnCacheSweep(3)
}
