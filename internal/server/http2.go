/*
Package server HTTP 服务器封装

HTTP/2（标准库 TLS 自动协商）+ 可选 HTTP/3（QUIC）两套监听，
共享同一个 gin 路由，统一优雅关闭。
*/
package server

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"
)

/*
HTTP2Server HTTP/1.1 + HTTP/2 服务器
功能：启用 TLS 时 Go 标准库自动协商 HTTP/2（ALPN），
明文模式退化为 HTTP/1.1
*/
type HTTP2Server struct {
	srv *http.Server
}

/*
NewHTTP2Server 创建 HTTP/2 服务器
*/
func NewHTTP2Server(addr string, handler http.Handler, tlsConfig *tls.Config,
	readTimeout, writeTimeout time.Duration) *HTTP2Server {
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	return &HTTP2Server{
		srv: &http.Server{
			Addr:           addr,
			Handler:        handler,
			TLSConfig:      tlsConfig,
			ReadTimeout:    readTimeout,
			WriteTimeout:   writeTimeout,
			IdleTimeout:    120 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
	}
}

/*
Start 以 TLS 启动
*/
func (s *HTTP2Server) Start(certFile, keyFile string) error {
	return s.srv.ListenAndServeTLS(certFile, keyFile)
}

/*
StartInsecure 明文启动（开发环境/反向代理后）
*/
func (s *HTTP2Server) StartInsecure() error {
	return s.srv.ListenAndServe()
}

/*
Shutdown 优雅关闭
*/
func (s *HTTP2Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
