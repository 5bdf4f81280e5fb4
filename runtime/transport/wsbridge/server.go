package wsbridge

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
)

// Default server settings.
const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultMaxMessageSize   = 1 << 20
)

// Config configures a Server.
type Config struct {
	// HandshakeTimeout bounds the wait for the hello message.
	HandshakeTimeout time.Duration
	// WriteWait is the write deadline of each message.
	WriteWait time.Duration
	// MaxMessageSize is the read limit of the socket.
	MaxMessageSize int64
}

func (c *Config) defaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
}

// Server accepts gateway sockets. Each hello names a connection id; a
// socket naming a live connection reattaches to it instead of creating a
// new one.
type Server struct {
	cfg       Config
	upgrader  websocket.Upgrader
	roster    *Roster
	onConnect func(*Conn)

	mu     sync.Mutex
	conns  map[string]*Conn
	closed bool
}

// NewServer creates a Server. onConnect runs in its own goroutine for every
// new connection.
func NewServer(cfg Config, onConnect func(*Conn)) *Server {
	cfg.defaults()
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		roster:    NewRoster(),
		onConnect: onConnect,
		conns:     make(map[string]*Conn),
	}
}

// Roster returns the participants announced by all gateways.
func (s *Server) Roster() *Roster { return s.roster }

// Conn returns the live connection with the given id.
func (s *Server) Conn(id string) (*Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	return c, ok
}

// Len returns the number of live connections.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// ServeHTTP upgrades the request and serves one gateway socket.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("gateway upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	hello, ok := s.readHello(ws)
	if !ok {
		return
	}

	conn, created, ok := s.bind(hello.ConnectionID)
	if !ok {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(s.cfg.WriteWait))
		return
	}
	conn.attach(ws, hello)
	logger.Info("gateway attached", "connection_id", conn.ID(), "new", created, "remote", r.RemoteAddr)

	if created && s.onConnect != nil {
		go s.onConnect(conn)
	}

	s.readLoop(ws, conn)
	conn.detach(ws)
	logger.Info("gateway detached", "connection_id", conn.ID())
}

func (s *Server) readHello(ws *websocket.Conn) (*Message, bool) {
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	mt, data, err := ws.ReadMessage()
	if err != nil {
		logger.Warn("failed to read gateway hello", "error", err)
		return nil, false
	}
	_ = ws.SetReadDeadline(time.Time{})

	if mt != websocket.BinaryMessage {
		s.reject(ws, "first message must be a binary hello")
		return nil, false
	}
	m, err := Decode(data)
	if err != nil || m.Type != TypeHello || m.ConnectionID == "" {
		s.reject(ws, "first message must be a hello with a connection id")
		return nil, false
	}
	return m, true
}

func (s *Server) reject(ws *websocket.Conn, reason string) {
	logger.Warn("rejecting gateway", "reason", reason)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(s.cfg.WriteWait))
}

func (s *Server) readLoop(ws *websocket.Conn, conn *Conn) {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("gateway read ended", "connection_id", conn.ID(), "error", err)
			}
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		m, err := Decode(data)
		if err != nil {
			logger.Warn("dropping malformed gateway message", "connection_id", conn.ID(), "error", err)
			continue
		}
		conn.handle(m)
	}
}

// bind returns the live connection for id, creating it if needed.
func (s *Server) bind(id string) (conn *Conn, created, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, false
	}
	if c, exists := s.conns[id]; exists {
		return c, false, true
	}
	c := newConn(id, s.roster, s.cfg.WriteWait, s.forget)
	s.conns[id] = c
	return c, true, true
}

func (s *Server) forget(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns[c.ID()] == c {
		delete(s.conns, c.ID())
	}
}

// Close destroys every connection and rejects new sockets.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Destroy()
	}
}
