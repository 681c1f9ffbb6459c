package courierclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/realtime"
	"github.com/israelreshef/delivery-app-sub000/internal/wire"
)

// ErrOffline is returned by writes while no session is joined.
var ErrOffline = errors.New("socket offline")

const (
	minBackoff   = 500 * time.Millisecond
	maxBackoff   = 30 * time.Second
	writeTimeout = 5 * time.Second
	readWait     = 60 * time.Second // сервер пингует каждые 54s
	roleCourier  = "courier"
)

// SocketEvents are called from the socket's read loop and must not block.
type SocketEvents struct {
	OnConnected    func(ctx context.Context)
	OnDisconnected func(err error)
	OnOffer        func(ctx context.Context, offer realtime.OrderOffer)
	OnRevoked      func(orderID int64, reason string)
	OnOrder        func(o wire.Order)
}

// Socket keeps a courier session joined, reconnecting with capped backoff.
type Socket struct {
	url       string
	token     string
	courierID int64
	events    SocketEvents
	dialer    *websocket.Dialer
	logger    logx.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
	readWait   time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewSocket creates a Socket for serverURL (http or https base).
func NewSocket(serverURL, token string, courierID int64, events SocketEvents, logger logx.Logger) *Socket {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Socket{
		url:        socketURL(serverURL),
		token:      token,
		courierID:  courierID,
		events:     events,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:     logger,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		readWait:   readWait,
	}
}

func socketURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

// Connected reports whether a session is joined.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Run keeps the session up until ctx is done.
func (s *Socket) Run(ctx context.Context) error {
	delay := s.minBackoff
	for {
		joined, err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if joined {
			delay = s.minBackoff
		}
		s.logger.Warn("socket disconnected", logx.Err(err), logx.Duration("retry_in", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > s.maxBackoff {
			delay = s.maxBackoff
		}
	}
}

// session dials, joins and reads until the connection drops.
func (s *Socket) session(ctx context.Context) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	// a link that died silently surfaces as a read timeout
	_ = conn.SetReadDeadline(time.Now().Add(s.readWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.readWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	join := realtime.JoinRequest{Role: roleCourier, ID: s.courierID, Token: s.token}
	if err := writeEnvelope(conn, realtime.TypeJoin, join); err != nil {
		return false, fmt.Errorf("join: %w", err)
	}

	joined := false
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if joined {
				s.setConn(nil)
				if s.events.OnDisconnected != nil {
					s.events.OnDisconnected(err)
				}
			}
			return joined, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.readWait))

		var env realtime.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.logger.Debug("socket: malformed message", logx.Err(err))
			continue
		}

		switch env.Type {
		case realtime.TypeJoined:
			if joined {
				continue
			}
			joined = true
			s.setConn(conn)
			s.logger.Info("socket joined", logx.Int64("courier_id", s.courierID))
			if s.events.OnConnected != nil {
				s.events.OnConnected(ctx)
			}
		case realtime.TypeError:
			var m realtime.ErrorMessage
			_ = json.Unmarshal(env.Data, &m)
			if !joined {
				return false, fmt.Errorf("join rejected: %s (%s)", m.Message, m.Code)
			}
			s.logger.Warn("socket: server error", logx.String("code", m.Code), logx.String("message", m.Message))
		case realtime.TypeNewOrderOffer:
			var offer realtime.OrderOffer
			if err := json.Unmarshal(env.Data, &offer); err == nil && s.events.OnOffer != nil {
				s.events.OnOffer(ctx, offer)
			}
		case realtime.TypeOfferRevoked:
			var rev realtime.OfferRevoked
			if err := json.Unmarshal(env.Data, &rev); err == nil && s.events.OnRevoked != nil {
				s.events.OnRevoked(rev.OrderID, rev.Reason)
			}
		case realtime.TypeDeliveryStatusUpdate:
			var upd realtime.DeliveryStatusUpdate
			if err := json.Unmarshal(env.Data, &upd); err == nil && s.events.OnOrder != nil {
				s.events.OnOrder(upd.Order)
			}
		}
	}
}

func (s *Socket) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// SendLocation reports a position. It returns ErrOffline without a session.
func (s *Socket) SendLocation(lat, lng float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrOffline
	}
	return writeEnvelope(s.conn, realtime.TypeLocationUpdate, realtime.LocationRequest{Lat: lat, Lng: lng})
}

func writeEnvelope(conn *websocket.Conn, typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(realtime.Envelope{Type: typ, Data: raw})
}
