package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"moonvpn/internal/errs"
	"moonvpn/internal/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "moonvpn",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "面板 API 请求耗时",
		Buckets:   prometheus.DefBuckets,
	}, []string{"panel", "op", "outcome"})

	breakerOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moonvpn",
		Subsystem: "gateway",
		Name:      "breaker_open_total",
		Help:      "熔断器打开次数",
	}, []string{"panel"})
)

/*
Gateway 面板网关接口
功能：屏蔽具体面板实现的远程操作抽象，编排器、续费器、
对账器只依赖该接口。所有操作以幂等标签为键。
*/
type Gateway interface {
	Probe(ctx context.Context) error
	ListInbounds(ctx context.Context) ([]InboundInfo, error)
	ListClients(ctx context.Context) ([]RemoteClient, error)
	CreateClient(ctx context.Context, spec ClientSpec) (*RemoteClient, error)
	UpdateClient(ctx context.Context, spec ClientSpec) error
	DeleteClient(ctx context.Context, inboundID int, tag string) error
	GetTraffic(ctx context.Context, tag string) (*TrafficStat, error)
}

/*
ClientOptions 面板客户端选项
*/
type ClientOptions struct {
	PanelName      string
	Endpoint       string
	Username       string
	Password       string
	RequestTimeout time.Duration
	SessionTTL     time.Duration
	Retry          RetryPolicy
	Breaker        *Breaker
	InsecureTLS    bool
}

/*
Client 基于 HTTP 的面板网关客户端
功能：封装登录会话、重试和熔断。会话过期或收到 401 时
自动重新认证一次后重放请求。
*/
type Client struct {
	opts ClientOptions
	http *http.Client

	sessMu sync.Mutex
	sess   *session

	breaker *Breaker
	retry   RetryPolicy
}

/*
NewClient 创建面板客户端
*/
func NewClient(opts ClientOptions) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	if opts.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	breaker := opts.Breaker
	if breaker == nil {
		breaker = NewBreaker(5, 30*time.Second)
	}

	return &Client{
		opts: opts,
		http: &http.Client{
			Timeout:   opts.RequestTimeout,
			Transport: transport,
		},
		breaker: breaker,
		retry:   opts.Retry,
	}
}

/*
Breaker 获取熔断器（健康上报用）
*/
func (c *Client) Breaker() *Breaker {
	return c.breaker
}

/* ==================== 认证 ==================== */

/*
authenticate 登录面板获取会话
*/
func (c *Client) authenticate(ctx context.Context) (string, error) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()

	if c.sess.valid() {
		return c.sess.cookie, nil
	}

	form := url.Values{}
	form.Set("username", c.opts.Username)
	form.Set("password", c.opts.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.opts.Endpoint+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", errs.NewPermanent("login", 0, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errs.NewTransient("login", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus("login", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errs.NewTransient("login", resp.StatusCode, err)
	}
	if !body.Success {
		return "", errs.NewPermanent("login", resp.StatusCode,
			fmt.Errorf("面板拒绝登录: %s", body.Msg))
	}

	cookie := ""
	for _, ck := range resp.Cookies() {
		if ck.Name == "session" || strings.HasPrefix(ck.Name, "3x-ui") || strings.HasPrefix(ck.Name, "x-ui") {
			cookie = ck.Name + "=" + ck.Value
			break
		}
	}
	if cookie == "" {
		return "", errs.NewPermanent("login", resp.StatusCode,
			fmt.Errorf("登录响应未携带会话 cookie"))
	}

	c.sess = &session{cookie: cookie, expiresAt: time.Now().Add(c.opts.SessionTTL)}
	logger.Debug("面板登录成功", zap.String("panel", c.opts.PanelName))
	return cookie, nil
}

/*
invalidateSession 作废缓存的会话
*/
func (c *Client) invalidateSession() {
	c.sessMu.Lock()
	c.sess = nil
	c.sessMu.Unlock()
}

/* ==================== 请求执行 ==================== */

/*
call 执行一次面板 API 调用
功能：熔断检查 → 认证 → 请求 → 结果分类上报。
401 时作废会话重新认证后重放一次。
*/
func (c *Client) call(ctx context.Context, op, method, path string, payload any, out any) error {
	if !c.breaker.Allow() {
		requestDuration.WithLabelValues(c.opts.PanelName, op, "breaker_open").Observe(0)
		return errs.NewTransient(op, 0, errs.ErrRemoteUnavailable)
	}

	start := time.Now()
	err := c.doOnce(ctx, op, method, path, payload, out)
	var re *errs.RemoteError
	if errors.As(err, &re) && re.StatusCode == http.StatusUnauthorized {
		c.invalidateSession()
		err = c.doOnce(ctx, op, method, path, payload, out)
	}

	outcome := "ok"
	if err != nil {
		if errs.IsTransient(err) {
			outcome = "transient_error"
		} else {
			outcome = "permanent_error"
		}
	}
	requestDuration.WithLabelValues(c.opts.PanelName, op, outcome).Observe(time.Since(start).Seconds())

	before := c.breaker.State()
	c.breaker.Record(err)
	if before != BreakerOpen && c.breaker.State() == BreakerOpen {
		breakerOpens.WithLabelValues(c.opts.PanelName).Inc()
		logger.Warn("面板熔断器打开",
			zap.String("panel", c.opts.PanelName),
			zap.String("op", op))
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, op, method, path string, payload any, out any) error {
	cookie, err := c.authenticate(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return errs.NewPermanent(op, 0, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.opts.Endpoint+path, body)
	if err != nil {
		return errs.NewPermanent(op, 0, err)
	}
	req.Header.Set("Cookie", cookie)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.NewTransient(op, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(op, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errs.NewTransient(op, resp.StatusCode, err)
	}

	var envelope struct {
		Success bool            `json:"success"`
		Msg     string          `json:"msg"`
		Obj     json.RawMessage `json:"obj"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return errs.NewTransient(op, resp.StatusCode, err)
	}
	if !envelope.Success {
		return errs.NewPermanent(op, resp.StatusCode,
			fmt.Errorf("面板拒绝操作: %s", envelope.Msg))
	}
	if out != nil && len(envelope.Obj) > 0 {
		if err := json.Unmarshal(envelope.Obj, out); err != nil {
			return errs.NewTransient(op, resp.StatusCode, err)
		}
	}
	return nil
}

/*
classifyStatus HTTP 状态码分类
功能：5xx/429 视为瞬时可重试，其余 4xx 视为永久
*/
func classifyStatus(op string, code int) error {
	err := fmt.Errorf("面板返回状态码 %d", code)
	if code >= 500 || code == http.StatusTooManyRequests {
		return errs.NewTransient(op, code, err)
	}
	return errs.NewPermanent(op, code, err)
}

/* ==================== 远程操作 ==================== */

/*
Probe 探测面板可达性
功能：轻量健康检查，走认证路径以同时验证凭据有效
*/
func (c *Client) Probe(ctx context.Context) error {
	return c.call(ctx, "probe", http.MethodGet, "/panel/api/inbounds/list", nil, nil)
}

/*
ListInbounds 列出面板入站
*/
func (c *Client) ListInbounds(ctx context.Context) ([]InboundInfo, error) {
	var inbounds []InboundInfo
	err := c.retry.Do(ctx, func() error {
		return c.call(ctx, "list_inbounds", http.MethodGet, "/panel/api/inbounds/list", nil, &inbounds)
	})
	if err != nil {
		return nil, err
	}
	return inbounds, nil
}

/*
ListClients 列出面板上的所有客户端
功能：对账扫描的远程侧输入
*/
func (c *Client) ListClients(ctx context.Context) ([]RemoteClient, error) {
	var clients []RemoteClient
	err := c.retry.Do(ctx, func() error {
		return c.call(ctx, "list_clients", http.MethodGet, "/panel/api/clients/list", nil, &clients)
	})
	if err != nil {
		return nil, err
	}
	return clients, nil
}

/*
findByTag 按幂等标签查找客户端
*/
func (c *Client) findByTag(ctx context.Context, tag string) (*RemoteClient, error) {
	clients, err := c.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	for i := range clients {
		if clients[i].Tag == tag {
			return &clients[i], nil
		}
	}
	return nil, nil
}

/*
CreateClient 在面板上创建客户端
功能：按幂等标签创建。创建请求超时后无法确认远端是否生效，
重试前先按标签查询，已存在则直接采用，保证至多一个客户端。
*/
func (c *Client) CreateClient(ctx context.Context, spec ClientSpec) (*RemoteClient, error) {
	var created RemoteClient
	attempted := false

	err := c.retry.Do(ctx, func() error {
		if attempted {
			existing, ferr := c.findByTag(ctx, spec.Tag)
			if ferr == nil && existing != nil {
				created = *existing
				return nil
			}
		}
		attempted = true
		return c.call(ctx, "create_client", http.MethodPost,
			fmt.Sprintf("/panel/api/inbounds/%d/addClient", spec.InboundID), spec, &created)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

/*
UpdateClient 更新面板上的客户端（配额、到期时间、启停）
*/
func (c *Client) UpdateClient(ctx context.Context, spec ClientSpec) error {
	return c.retry.Do(ctx, func() error {
		return c.call(ctx, "update_client", http.MethodPost,
			fmt.Sprintf("/panel/api/inbounds/%d/updateClient/%s", spec.InboundID, spec.RemoteID), spec, nil)
	})
}

/*
DeleteClient 删除面板上的客户端
功能：目标不存在（404）视为成功，删除天然幂等
*/
func (c *Client) DeleteClient(ctx context.Context, inboundID int, tag string) error {
	return c.retry.Do(ctx, func() error {
		err := c.call(ctx, "delete_client", http.MethodPost,
			fmt.Sprintf("/panel/api/inbounds/%d/delClient/%s", inboundID, tag), nil, nil)
		var re *errs.RemoteError
		if errors.As(err, &re) && re.StatusCode == http.StatusNotFound {
			return nil
		}
		return err
	})
}

/*
GetTraffic 获取客户端流量读数
*/
func (c *Client) GetTraffic(ctx context.Context, tag string) (*TrafficStat, error) {
	var stat TrafficStat
	err := c.retry.Do(ctx, func() error {
		return c.call(ctx, "get_traffic", http.MethodGet,
			"/panel/api/inbounds/getClientTraffics/"+url.PathEscape(tag), nil, &stat)
	})
	if err != nil {
		return nil, err
	}
	return &stat, nil
}
