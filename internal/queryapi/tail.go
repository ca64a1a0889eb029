package queryapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dbaudit/collector/internal/query"
)

// pollInterval is how often the tail loop checks for newly appended
// records, analogous to the teacher's websocket status-poll ticker.
const pollInterval = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Mitigation: OWASP A01:2021-Broken Access Control (Cross-Site
	// WebSocket Hijacking) — enforce same-origin on the upgrade the same
	// way the teacher's websocket.go does, on top of (not instead of)
	// the bearer-token check authenticated already applies to this route.
	CheckOrigin: checkTailOrigin,
}

func checkTailOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if strings.Contains(origin, "://localhost:") || strings.Contains(origin, "://127.0.0.1:") {
		return true
	}
	host := r.Host
	if strings.HasPrefix(origin, "http://") {
		return origin[len("http://"):] == host
	}
	if strings.HasPrefix(origin, "https://") {
		return origin[len("https://"):] == host
	}
	return false
}

// tailClient is one open /api/audit/tail connection.
type tailClient struct {
	id   string
	send chan query.Row

	mu     sync.Mutex
	closed bool
}

func (c *tailClient) offer(row query.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- row:
	default:
		// slow reader: drop rather than block the poll loop
	}
}

// handleTail upgrades to a websocket and streams every live record whose
// timestamp is newer than the connection's start time, polling the
// archive the same way new pgaudit files become visible to a concurrent
// reader: there is no push notification, so this walks the tail window
// repeatedly.
func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("tail upgrade failed", "error", err)
		return
	}

	client := &tailClient{id: uuid.New().String(), send: make(chan query.Row, 256)}

	s.tailMu.Lock()
	s.tailers[client] = true
	s.tailMu.Unlock()

	go s.tailWritePump(conn, client)
	s.tailReadPump(conn, client)
}

// tailReadPump blocks reading (and discarding) client frames purely to
// detect disconnects, then unregisters the client.
func (s *Server) tailReadPump(conn *websocket.Conn, client *tailClient) {
	defer s.unregisterTailer(conn, client)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) tailWritePump(conn *websocket.Conn, client *tailClient) {
	defer conn.Close()
	for row := range client.send {
		if err := conn.WriteJSON(row); err != nil {
			return
		}
	}
}

func (s *Server) unregisterTailer(conn *websocket.Conn, client *tailClient) {
	s.tailMu.Lock()
	delete(s.tailers, client)
	s.tailMu.Unlock()

	client.mu.Lock()
	if !client.closed {
		client.closed = true
		close(client.send)
	}
	client.mu.Unlock()
	conn.Close()
}

// tailLoop polls the archive for records newer than the last poll and
// fans each one out to every connected tailer.
func (s *Server) tailLoop() {
	since := time.Now().Unix()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.tailMu.Lock()
		n := len(s.tailers)
		s.tailMu.Unlock()
		if n == 0 {
			since = time.Now().Unix()
			continue
		}

		now := time.Now().Unix()
		rows, err := query.Query(s.dir, since, now+1)
		if err != nil {
			s.log.Warn("tail poll failed", "error", err)
			continue
		}
		since = now

		if len(rows) == 0 {
			continue
		}
		s.tailMu.Lock()
		for client := range s.tailers {
			for _, row := range rows {
				client.offer(row)
			}
		}
		s.tailMu.Unlock()
	}
}
