package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"certEngine/internal/worker"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
)

// newUpgrader 只允许同源或白名单中的 Origin。
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if len(allowedOrigins) == 0 {
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			}
			origin = strings.TrimRight(origin, "/")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}
}

// WsHandler 将某活动的批量生成通知从 Redis 转发给 WebSocket 客户端。
type WsHandler struct {
	redisClient *redis.Client
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// NewWsHandler 构造 WebSocket 处理器。
func NewWsHandler(redisClient *redis.Client, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	return &WsHandler{
		redisClient: redisClient,
		logger:      logger,
		upgrader:    newUpgrader(allowedOrigins),
	}
}

// HandleConnection 负责升级连接并启动读写循环。
// GET /v1/ws?event_id=
func (h *WsHandler) HandleConnection(c *gin.Context) {
	eventID, err := strconv.ParseUint(c.Query("event_id"), 10, 64)
	if err != nil || eventID == 0 {
		BadRequest(c, "invalid event_id")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	log := h.logger.With(
		slog.String("client_ip", c.ClientIP()),
		slog.Uint64("event_id", eventID),
	)

	errCh := make(chan error, 2)
	go h.readLoop(ctx, conn, errCh, cancel)
	go h.subscribeLoop(ctx, conn, worker.EventChannel(uint(eventID)), errCh, cancel, log)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Info("websocket connection closed", slog.Any("error", err))
		} else {
			log.Info("websocket connection closed")
		}
	}
}

// readLoop 丢弃客户端消息，只用于检测断开。
func (h *WsHandler) readLoop(ctx context.Context, conn *websocket.Conn, errCh chan<- error, cancel context.CancelFunc) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			select {
			case <-ctx.Done():
			default:
				errCh <- fmt.Errorf("read message: %w", err)
			}
			cancel()
			return
		}
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(wsWriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}

func (h *WsHandler) subscribeLoop(
	ctx context.Context,
	conn *websocket.Conn,
	channel string,
	errCh chan<- error,
	cancel context.CancelFunc,
	log *slog.Logger,
) {
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Info("subscribed to redis channel", slog.String("channel", channel))

	ch := pubsub.Channel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			writeClose(conn, websocket.CloseNormalClosure, "bye")
			return
		case msg, ok := <-ch:
			if !ok {
				errCh <- fmt.Errorf("pubsub channel closed")
				cancel()
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				errCh <- fmt.Errorf("write message: %w", err)
				cancel()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				errCh <- fmt.Errorf("write ping: %w", err)
				cancel()
				return
			}
		}
	}
}
