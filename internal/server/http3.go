package server

import (
	"context"
	"crypto/tls"
	"net/http"

	"github.com/quic-go/quic-go/http3"
)

/*
HTTP3Server HTTP/3 (QUIC) 服务器
功能：与 HTTP/2 服务器共享同一个路由，在 UDP 端口上提供 QUIC 传输。
HTTP/3 必须携带 TLS 配置。
*/
type HTTP3Server struct {
	srv *http3.Server
}

/*
NewHTTP3Server 创建 HTTP/3 服务器
*/
func NewHTTP3Server(addr string, handler http.Handler, tlsConfig *tls.Config) *HTTP3Server {
	cfg := tlsConfig.Clone()
	cfg.NextProtos = []string{"h3"}

	return &HTTP3Server{
		srv: &http3.Server{
			Addr:      addr,
			Handler:   handler,
			TLSConfig: cfg,
		},
	}
}

/*
Start 启动服务器
*/
func (s *HTTP3Server) Start() error {
	return s.srv.ListenAndServe()
}

/*
Shutdown 优雅关闭
*/
func (s *HTTP3Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
