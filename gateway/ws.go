package gateway

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"polymarket-maker-go/config"
)

// FillHandler consumes one executed-trade event for an order we placed.
type FillHandler func(orderID string, price, size float64)

const (
	userChannelPath = "/user"
	pingInterval    = 10 * time.Second
	readTimeout     = 30 * time.Second
)

type wsAuth struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

type wsSubscribe struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel"`
	Markets []string `json:"markets,omitempty"`
	Auth    *wsAuth  `json:"auth,omitempty"`
}

type wsEnvelope struct {
	EventType string `json:"event_type"`
}

type wsUserTrade struct {
	OrderID string `json:"order_id"`
	AssetID string `json:"asset_id"`
	Side    string `json:"side"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Status  string `json:"status"`
}

// FillStream 订阅 user channel 并把成交事件推给 handler；断线后按配置间隔重连。
// Every user-trade event is forwarded, tracked or not: fills for ids nobody
// remembers still reach the reconciler, which is the one place that decides
// what an unknown fill means.
type FillStream struct {
	url       string
	market    string
	auth      wsAuth
	reconnect time.Duration
	handler   FillHandler
	Dialer    *websocket.Dialer
	log       *zap.Logger

	mu      sync.Mutex
	tracked map[string]struct{}
}

// NewFillStream builds the user-channel fill feed for one market. The fill
// handler is wired afterwards with SetHandler: the reconciler needs the feed
// to exist first, and the feed needs the reconciler's fill callback.
func NewFillStream(cfg config.GatewayConfig, conditionID string, log *zap.Logger) *FillStream {
	reconnect := time.Duration(cfg.WSReconnectSec) * time.Second
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}
	return &FillStream{
		url:       strings.TrimRight(cfg.WSURL, "/") + userChannelPath,
		market:    conditionID,
		auth:      wsAuth{APIKey: cfg.APIKey, Secret: cfg.APISecret, Passphrase: cfg.APIPassphrase},
		reconnect: reconnect,
		Dialer:    websocket.DefaultDialer,
		log:       log,
		tracked:   make(map[string]struct{}),
	}
}

// SetHandler wires the fill callback. Must be called before Run.
func (s *FillStream) SetHandler(h FillHandler) { s.handler = h }

// Track registers an order id as ours. Implements order.FillFeed.
func (s *FillStream) Track(orderID string) {
	s.mu.Lock()
	s.tracked[orderID] = struct{}{}
	s.mu.Unlock()
}

// Untrack forgets an order id once it is canceled or fully filled.
func (s *FillStream) Untrack(orderID string) {
	s.mu.Lock()
	delete(s.tracked, orderID)
	s.mu.Unlock()
}

func (s *FillStream) isTracked(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, found := s.tracked[orderID]
	return found
}

// Run connects, subscribes and pumps events until ctx is canceled. Each
// disconnect waits the reconnect interval and dials again; fills that happen
// while disconnected are repaired by the reconcile loop's cancel/replace.
func (s *FillStream) Run(ctx context.Context) {
	for {
		if err := s.runOnce(ctx); err != nil {
			s.log.Warn("fill stream disconnected", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnect):
		}
	}
}

func (s *FillStream) runOnce(ctx context.Context) error {
	conn, _, err := s.Dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := wsSubscribe{
		Type:    "subscribe",
		Channel: "user",
		Markets: []string{s.market},
		Auth:    &s.auth,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	s.log.Info("fill stream connected", zap.String("market", s.market))

	// 服务端要求周期性 PING，否则踢下线
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.dispatch(payload)
	}
}

// dispatch parses one frame. The user channel batches events into arrays.
func (s *FillStream) dispatch(payload []byte) {
	if len(payload) > 0 && payload[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(payload, &batch); err == nil {
			for _, raw := range batch {
				s.dispatchOne(raw)
			}
			return
		}
	}
	s.dispatchOne(payload)
}

func (s *FillStream) dispatchOne(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}
	if env.EventType != "trade" {
		return
	}

	var ev wsUserTrade
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.log.Warn("bad trade event", zap.Error(err))
		return
	}
	price, err := strconv.ParseFloat(ev.Price, 64)
	if err != nil {
		s.log.Warn("bad trade price", zap.String("price", ev.Price))
		return
	}
	size, err := strconv.ParseFloat(ev.Size, 64)
	if err != nil {
		s.log.Warn("bad trade size", zap.String("size", ev.Size))
		return
	}

	if !s.isTracked(ev.OrderID) {
		s.log.Debug("trade event for untracked order", zap.String("order_id", ev.OrderID))
	}
	if s.handler != nil {
		s.handler(ev.OrderID, price, size)
	}
}
