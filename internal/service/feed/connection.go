package feed

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/nepselabs/feed-service/internal/config"
	"github.com/nepselabs/feed-service/internal/entity"
	"github.com/sirupsen/logrus"
)

// streamConn is the subset of *websocket.Conn the manager needs; tests plug
// in fakes through dialFunc.
type streamConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

type dialFunc func(ctx context.Context, url string, timeout time.Duration) (streamConn, error)

func websocketDial(ctx context.Context, url string, timeout time.Duration) (streamConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// connectionManager owns the live-stream lifecycle and the polling fallback.
// Live and polling modes are mutually exclusive; the caches and subscriber
// registrations live outside the manager and survive mode flips.
type connectionManager struct {
	cfg       config.FeedConfig
	dial      dialFunc
	onMessage func(ctx context.Context, raw []byte)
	onPoll    func(ctx context.Context)
	onStatus  func(status entity.ConnectionStatus)
	symbols   func() []string

	mu           sync.Mutex
	status       entity.ConnectionStatus
	conn         streamConn
	runCancel    context.CancelFunc
	reconnecting bool
	retry        *backoff.Backoff
	now          func() time.Time
}

func newConnectionManager(cfg config.FeedConfig, dial dialFunc) *connectionManager {
	if dial == nil {
		dial = websocketDial
	}

	return &connectionManager{
		cfg:  cfg,
		dial: dial,
		retry: &backoff.Backoff{
			Min:    cfg.ReconnectBaseDelay,
			Max:    cfg.ReconnectMaxDelay,
			Factor: 2,
			Jitter: false,
		},
		status: entity.ConnectionStatus{
			ConnectionType: entity.ConnectionTypeOffline,
			DataQuality:    entity.DataQualityCached,
		},
		now: time.Now,
	}
}

// Connect attempts the live-stream handshake within the configured bound and
// falls back to polling instead of failing the call. Safe to call again
// after the reconnect ceiling has been reached.
func (m *connectionManager) Connect(ctx context.Context) error {
	m.Disconnect()

	runCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.runCancel = cancel
	m.status.ReconnectAttempts = 0
	m.mu.Unlock()
	m.retry.Reset()

	if err := m.establish(ctx, runCtx); err != nil {
		logrus.Warnf("live stream connect failed, falling back to polling: %v", err)
		m.startPolling(runCtx)
	}

	return nil
}

func (m *connectionManager) establish(dialCtx context.Context, runCtx context.Context) error {
	conn, err := m.dial(dialCtx, m.cfg.StreamURL, m.cfg.HandshakeTimeout)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.status.IsConnected = true
	m.status.ConnectionType = entity.ConnectionTypeLiveStream
	m.status.DataQuality = entity.DataQualityRealTime
	// A successful handshake clears the failure budget, so the ceiling
	// counts consecutive failures within one outage, not lifetime drops.
	m.status.ReconnectAttempts = 0
	m.status.LastUpdate = m.now()
	m.mu.Unlock()
	m.retry.Reset()
	m.notifyStatus()

	m.resubscribe(conn)

	go m.readLoop(runCtx, conn)
	go m.heartbeatLoop(runCtx, conn)

	return nil
}

func (m *connectionManager) resubscribe(conn streamConn) {
	for _, symbol := range m.symbols() {
		err := conn.WriteJSON(entity.StreamControl{
			Type:      entity.StreamControlSubscribe,
			Symbol:    symbol,
			DataTypes: []string{"quote", "trade", "orderbook", "depth", "sentiment"},
			Timestamp: m.now().UnixMilli(),
		})
		if err != nil {
			logrus.Warnf("resubscribe %s failed: %v", symbol, err)
			return
		}
	}
}

// SendControl forwards a subscribe/unsubscribe message when live; a no-op in
// polling mode where the symbol set is read on each tick.
func (m *connectionManager) SendControl(msg entity.StreamControl) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return
	}

	if err := conn.WriteJSON(msg); err != nil {
		logrus.Warnf("stream control write failed: %v", err)
	}
}

func (m *connectionManager) readLoop(ctx context.Context, conn streamConn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			logrus.Warnf("stream closed unexpectedly: %v", err)
			m.scheduleReconnect(ctx)
			return
		}

		m.onMessage(ctx, raw)
	}
}

func (m *connectionManager) heartbeatLoop(ctx context.Context, conn streamConn) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := conn.WriteJSON(entity.StreamControl{
				Type:      entity.StreamControlPing,
				Timestamp: m.now().UnixMilli(),
			})
			if err != nil {
				logrus.Warnf("heartbeat write failed: %v", err)
				return
			}
		}
	}
}

// RecordHeartbeat ingests the echoed ping timestamp and reclassifies data
// quality from the measured round trip.
func (m *connectionManager) RecordHeartbeat(sentMilli int64) {
	latency := m.now().Sub(time.UnixMilli(sentMilli))
	if latency < 0 {
		latency = 0
	}

	m.mu.Lock()
	m.status.Latency = latency
	if m.status.ConnectionType == entity.ConnectionTypeLiveStream {
		if latency > m.cfg.DelayedLatency {
			m.status.DataQuality = entity.DataQualityDelayed
		} else {
			m.status.DataQuality = entity.DataQualityRealTime
		}
	}
	m.mu.Unlock()
	m.notifyStatus()
}

// scheduleReconnect arms a single backoff timer. Guarded so overlapping read
// failures cannot start duplicate reconnect storms; stops permanently once
// consecutive failures reach the ceiling, until a manual Connect.
func (m *connectionManager) scheduleReconnect(ctx context.Context) {
	m.mu.Lock()
	if m.reconnecting {
		m.mu.Unlock()
		return
	}

	m.conn = nil
	m.status.IsConnected = false
	m.status.DataQuality = entity.DataQualityCached

	if m.status.ReconnectAttempts >= m.cfg.MaxReconnectAttempts {
		m.status.ConnectionType = entity.ConnectionTypeOffline
		m.mu.Unlock()
		m.notifyStatus()
		logrus.Errorf("reconnect ceiling of %d reached, staying offline until manual connect", m.cfg.MaxReconnectAttempts)
		return
	}

	m.reconnecting = true
	m.status.ReconnectAttempts++
	attempt := m.status.ReconnectAttempts
	m.mu.Unlock()
	m.notifyStatus()

	delay := m.retry.Duration()
	logrus.WithFields(logrus.Fields{
		"attempt":  attempt,
		"retry_in": delay.String(),
	}).Warn("scheduling stream reconnect")

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		m.mu.Lock()
		m.reconnecting = false
		m.mu.Unlock()

		if err := m.establish(ctx, ctx); err != nil {
			logrus.Warnf("stream reconnect failed: %v", err)
			m.scheduleReconnect(ctx)
		}
	}()
}

func (m *connectionManager) startPolling(ctx context.Context) {
	m.mu.Lock()
	m.status.IsConnected = true
	m.status.ConnectionType = entity.ConnectionTypePolling
	m.status.DataQuality = entity.DataQualityDelayed
	m.status.LastUpdate = m.now()
	m.mu.Unlock()
	m.notifyStatus()

	go func() {
		ticker := time.NewTicker(m.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.onPoll(ctx)
			}
		}
	}()
}

// Disconnect tears the stream down, cancels heartbeat/reconnect/polling
// timers and marks the status offline. Idempotent.
func (m *connectionManager) Disconnect() {
	m.mu.Lock()
	cancel := m.runCancel
	conn := m.conn
	m.runCancel = nil
	m.conn = nil
	m.reconnecting = false
	m.status.IsConnected = false
	m.status.ConnectionType = entity.ConnectionTypeOffline
	m.status.DataQuality = entity.DataQualityCached
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}

	m.notifyStatus()
}

func (m *connectionManager) Status() entity.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// MarkUpdate stamps the last accepted update time.
func (m *connectionManager) MarkUpdate() {
	m.mu.Lock()
	m.status.LastUpdate = m.now()
	m.mu.Unlock()
}

func (m *connectionManager) notifyStatus() {
	if m.onStatus == nil {
		return
	}

	m.onStatus(m.Status())
}
