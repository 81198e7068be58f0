/*
Package ws 事件流 WebSocket 服务

通知子系统（机器人/仪表盘）通过 /ws/events 订阅生命周期事件。
每个连接挂一个带缓冲的事件总线订阅，慢消费者的事件被丢弃而非
阻塞编排主路径，写失败即断开清理。
*/
package ws

import (
	"net/http"
	"sync/atomic"
	"time"

	"moonvpn/internal/pkg/logger"
	"moonvpn/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		/*
			机器人等服务端调用方不携带 Origin 头；浏览器连接已由
			CORS 中间件验证 Origin，此处统一放行。
		*/
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Server 事件流 WebSocket 服务器
type Server struct {
	bus            *service.EventBus
	maxConnections int
	connCount      atomic.Int64
}

/*
NewServer 创建事件流服务器
功能：maxConnections 为连接数上限，0 表示不限制
*/
func NewServer(bus *service.EventBus, maxConnections int) *Server {
	return &Server{
		bus:            bus,
		maxConnections: maxConnections,
	}
}

// HandleWebSocket 事件订阅处理函数
func (s *Server) HandleWebSocket(c *gin.Context) {
	/* 检查连接数限制，防止资源耗尽 */
	if s.maxConnections > 0 && int(s.connCount.Load()) >= s.maxConnections {
		logger.Warn("事件流连接数已达上限，拒绝新连接",
			zap.Int64("current", s.connCount.Load()),
			zap.Int("max", s.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "code": "TOO_MANY_CONNECTIONS"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", zap.Error(err))
		return
	}

	s.connCount.Add(1)
	events, cancel := s.bus.Subscribe(128)

	go s.writePump(conn, events, cancel)
	go s.readPump(conn)

	logger.Info("事件流订阅者已连接",
		zap.String("remote", conn.RemoteAddr().String()),
		zap.Int64("total", s.connCount.Load()))
}

/*
writePump 事件写出循环
功能：把订阅通道的事件序列化写出，周期性 ping 保活。
写失败或订阅通道关闭即清理退出。
*/
func (s *Server) writePump(conn *websocket.Conn, events <-chan service.Event, cancel func()) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
		s.connCount.Add(-1)
	}()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				logger.Debug("事件流写出失败，断开订阅者",
					zap.String("remote", conn.RemoteAddr().String()),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

/*
readPump 读循环
功能：事件流是单向推送，读循环只消费 pong/close 控制帧，
读错误触发连接关闭（writePump 随后清理）
*/
func (s *Server) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(1024)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			conn.Close()
			return
		}
	}
}

// Stats 连接统计
func (s *Server) Stats() map[string]interface{} {
	return map[string]interface{}{
		"connections": s.connCount.Load(),
		"subscribers": s.bus.SubscriberCount(),
	}
}
