// Package bridge watches the settlement feed of the yield venue's bridge and
// turns arrival notices into sequenced events.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"epoch_vault/internal/domain"
	"epoch_vault/internal/event"
	"epoch_vault/internal/infra"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxRetries = 10

	channelRedeemSettled = "redeem_settled"
)

// The feed is quiet between settlements; pongs keep the read deadline alive.
var (
	pingInterval = 30 * time.Second
	readTimeout  = 90 * time.Second
)

// Submitter sequences events.
type Submitter interface {
	Submit(ctx context.Context, ev event.Event) (event.Result, error)
}

// Config configures the watcher.
type Config struct {
	URL         string
	AutoConfirm bool           // submit confirmAsyncRedeem after each arrival
	Manager     common.Address // caller used for auto confirmation
}

type subscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// notice is one message of the settlement feed.
type notice struct {
	Type     string `json:"type"`
	TxID     string `json:"tx_id"`
	Amount   int64  `json:"amount"`
	DstChain uint64 `json:"dst_chain"`
}

// Watcher handles the settlement feed connection.
type Watcher struct {
	cfg       Config
	submitter Submitter
	metrics   *infra.Metrics
	logger    *slog.Logger

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWatcher creates a watcher. metrics may be nil.
func NewWatcher(cfg Config, submitter Submitter, metrics *infra.Metrics) *Watcher {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Watcher{
		cfg:       cfg,
		submitter: submitter,
		metrics:   metrics,
		logger:    slog.Default().With(slog.String("module", "bridge")),
	}
}

// Connect starts the connection loop with automatic reconnection.
func (w *Watcher) Connect(ctx context.Context) error {
	if w.cfg.URL == "" {
		return fmt.Errorf("bridge: no url configured")
	}
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

// Run connects and blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Connect(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Disconnect()
	return nil
}

func (w *Watcher) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Bridge panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Bridge connection loop stopped")
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			w.metrics.RecordBridgeError()
			if !domain.IsRetriable(err) {
				w.logger.Error("Bridge rejected connection, giving up", slog.Any("error", err))
				w.metrics.SetCircuitState(true)
				return
			}
			w.logger.Warn("Bridge connection failed",
				slog.Any("error", err),
				slog.Int("retry", retryCount),
			)

			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				w.logger.Error("Bridge max retries exceeded, resetting counter")
				w.metrics.SetCircuitState(true)
				retryCount = 0
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0
		w.metrics.SetCircuitState(false)

		connCtx, stopPing := context.WithCancel(ctx)
		w.wg.Add(1)
		go w.pingLoop(connCtx)

		w.readLoop(ctx)
		stopPing()
	}
}

func (w *Watcher) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	header := make(http.Header)
	header.Add("User-Agent", "epoch-vault")

	conn, resp, err := dialer.DialContext(ctx, w.cfg.URL, header)
	if err != nil {
		// 4xx on the handshake means the URL or credentials are wrong.
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return domain.NewFatalNetworkError("dial", fmt.Errorf("handshake status %d: %w", resp.StatusCode, err))
		}
		return domain.NewNetworkError("dial", err)
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()
	w.metrics.IncrementConnections()

	msg, err := json.Marshal(subscribeRequest{Op: "subscribe", Channels: []string{channelRedeemSettled}})
	if err != nil {
		w.closeConnection()
		return err
	}
	if err := w.threadSafeWrite(websocket.TextMessage, msg); err != nil {
		w.closeConnection()
		return domain.NewNetworkError("subscribe", err)
	}

	w.logger.Info("Bridge WebSocket connected", slog.String("url", w.cfg.URL))
	return nil
}

func (w *Watcher) threadSafeWrite(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection is nil")
	}
	return conn.WriteMessage(messageType, data)
}

func (w *Watcher) pingLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.threadSafeWrite(websocket.PingMessage, nil); err != nil {
				w.logger.Warn("Bridge ping failed", slog.Any("error", err))
			}
		}
	}
}

func (w *Watcher) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.metrics.RecordBridgeError()
				w.logger.Warn("Bridge read error", slog.Any("error", err))
			}
			w.closeConnection()
			return
		}

		w.handleMessage(ctx, message)
	}
}

// handleMessage submits a settlement for every redeem_settled notice.
func (w *Watcher) handleMessage(ctx context.Context, message []byte) {
	var n notice
	if err := json.Unmarshal(message, &n); err != nil {
		w.logger.Debug("Bridge message parse error", slog.Any("error", err))
		return
	}
	if n.Type != channelRedeemSettled {
		return
	}

	res, err := w.submitter.Submit(ctx, &event.RedeemSettledEvent{
		TxID:     n.TxID,
		Amount:   n.Amount,
		DstChain: n.DstChain,
	})
	if err != nil {
		w.logger.Warn("Settlement submit failed", slog.String("tx_id", n.TxID), slog.Any("error", err))
		return
	}
	if res.Err != nil {
		w.logger.Warn("Settlement rejected",
			slog.String("tx_id", n.TxID),
			slog.Uint64("seq", res.Seq),
			slog.Any("error", res.Err),
		)
		return
	}
	w.logger.Info("Settlement applied",
		slog.String("tx_id", n.TxID),
		slog.Uint64("seq", res.Seq),
		slog.Int64("amount", res.Value),
	)

	if !w.cfg.AutoConfirm {
		return
	}
	res, err = w.submitter.Submit(ctx, &event.Command{
		ID:     uuid.NewString(),
		Kind:   event.TypeConfirmAsyncRedeem,
		Caller: w.cfg.Manager,
	})
	if err != nil {
		w.logger.Warn("Auto confirm submit failed", slog.Any("error", err))
		return
	}
	if res.Err != nil {
		w.logger.Warn("Auto confirm rejected", slog.String("code", domain.Code(res.Err)))
	}
}

func (w *Watcher) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
		w.metrics.DecrementConnections()
	}
	w.connected = false
}

// Disconnect closes the connection and waits for the loops to exit.
func (w *Watcher) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
	w.logger.Info("Bridge WebSocket disconnected")
}

// IsConnected returns connection status.
func (w *Watcher) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}
