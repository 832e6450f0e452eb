package api

import (
	"net/http"
	"sync"
	"time"

	"FinFeed/internal/domain/models"
	"FinFeed/internal/usecase"
	xhttp "FinFeed/pkg/http"
	xlogger "FinFeed/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// QuoteStreamer registers quote callbacks. usecase.SubscriptionManager implements it.
type QuoteStreamer interface {
	Subscribe(symbol string, fn usecase.UpdateFunc) (usecase.Subscription, func(), error)
}

// ConnectionNotifier reports the heartbeat state and its transitions. usecase.Heartbeat implements it.
type ConnectionNotifier interface {
	Status() models.ConnectionStatus
	OnConnectionChange(l usecase.ConnectionListener) func()
}

const (
	MessageQuote      = "quote"
	MessageConnection = "connection"
	MessageError      = "error"
)

// StreamMessage is one frame on /ws/quotes.
type StreamMessage struct {
	Type       string                   `json:"type"`
	Symbol     string                   `json:"symbol,omitempty"`
	Update     *models.QuoteUpdate      `json:"update,omitempty"`
	Connection *models.ConnectionStatus `json:"connection,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// StreamHandler pushes live quote updates over WebSocket.
type StreamHandler struct {
	logger     *xlogger.Logger
	subs       QuoteStreamer
	notifier   ConnectionNotifier
	upgrader   websocket.Upgrader
	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
	sendBuffer int
}

// NewStreamHandler creates a new StreamHandler instance. notifier may be nil.
func NewStreamHandler(logger *xlogger.Logger, subs QuoteStreamer, notifier ConnectionNotifier) *StreamHandler {
	return &StreamHandler{
		logger:   logger,
		subs:     subs,
		notifier: notifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeWait:  10 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 54 * time.Second,
		sendBuffer: 64,
	}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/quotes", h.Stream)
}

// streamConn owns one client connection.
type streamConn struct {
	out    chan StreamMessage
	done   chan struct{}
	once   sync.Once
	logger *xlogger.Logger
}

func (s *streamConn) close() { s.once.Do(func() { close(s.done) }) }

// send never blocks the caller. A full buffer drops the frame.
func (s *streamConn) send(m StreamMessage) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.out <- m:
	case <-s.done:
	default:
		s.logger.Warn("ws send buffer full, dropping frame",
			xlogger.String("type", m.Type),
			xlogger.String("symbol", m.Symbol),
		)
	}
}

func (h *StreamHandler) Stream(c echo.Context) error {
	req := &models.StreamRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", xlogger.Error(err))
		return nil
	}
	defer ws.Close()

	conn := &streamConn{
		out:    make(chan StreamMessage, h.sendBuffer),
		done:   make(chan struct{}),
		logger: h.logger,
	}
	defer conn.close()

	var cancels []func()
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	if h.notifier != nil {
		cancels = append(cancels, h.notifier.OnConnectionChange(func(st models.ConnectionStatus) {
			conn.send(StreamMessage{Type: MessageConnection, Connection: &st})
		}))
		// listeners only hear transitions
		st := h.notifier.Status()
		conn.send(StreamMessage{Type: MessageConnection, Connection: &st})
	}

	for _, symbol := range req.Symbols {
		sub, unsubscribe, err := h.subs.Subscribe(symbol, func(u models.QuoteUpdate) {
			conn.send(StreamMessage{Type: MessageQuote, Symbol: u.Quote.Symbol, Update: &u})
		})
		if err != nil {
			conn.send(StreamMessage{Type: MessageError, Symbol: symbol, Error: err.Error()})
			continue
		}
		cancels = append(cancels, unsubscribe)
		h.logger.Debug("ws subscribed",
			xlogger.String("symbol", sub.Symbol),
			xlogger.String("subscription", sub.ID),
		)
	}

	go h.readPump(ws, conn)
	h.writePump(ws, conn)
	return nil
}

// readPump discards client frames and closes the connection on read error.
func (h *StreamHandler) readPump(ws *websocket.Conn, conn *streamConn) {
	defer conn.close()
	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(h.pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHandler) writePump(ws *websocket.Conn, conn *streamConn) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-conn.done:
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.writeWait))
			return
		case m := <-conn.out:
			_ = ws.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := ws.WriteJSON(m); err != nil {
				h.logger.Debug("ws write failed", xlogger.Error(err))
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait)); err != nil {
				return
			}
		}
	}
}
