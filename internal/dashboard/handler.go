package dashboard

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	roamsync "github.com/roamtools/roamsync/internal/sync"
)

// Handler turns sync outcomes into dashboard messages. It bridges the
// watch daemon and the WebSocket server, and keeps cumulative counters.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates an event handler connected to a dashboard server.
// A nil server makes every method a no-op, so daemon code does not have
// to branch on whether the dashboard is enabled.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, logger: logger}
}

// OnPageSynced handles a successful page sync.
func (h *Handler) OnPageSynced(result *roamsync.Result) {
	if h == nil || h.server == nil {
		return
	}

	h.mu.Lock()
	h.stats.PagesSynced++
	h.stats.ActionsApplied += len(result.Actions)
	stats := h.stats
	h.mu.Unlock()

	h.send(MessageTypePageSync, PageSyncData{
		Page:        result.Page,
		PageCreated: result.PageCreated,
		Created:     result.Created,
		Updated:     result.Updated,
		Moved:       result.Moved,
		Deleted:     result.Deleted,
	})
	h.send(MessageTypeStats, stats)
}

// OnSyncError handles a failed page sync.
func (h *Handler) OnSyncError(page, file string, err error) {
	if h == nil || h.server == nil {
		return
	}

	h.mu.Lock()
	h.stats.Errors++
	stats := h.stats
	h.mu.Unlock()

	h.send(MessageTypeSyncError, SyncErrorData{
		Page: page, File: file, Error: err.Error(),
	})
	h.send(MessageTypeStats, stats)
}

// OnCacheSweep handles a completed cache sweep.
func (h *Handler) OnCacheSweep(removed int64) {
	if h == nil || h.server == nil {
		return
	}
	h.send(MessageTypeCacheSweep, CacheSweepData{Removed: removed})
}

func (h *Handler) send(typ MessageType, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      payload,
	})
}
