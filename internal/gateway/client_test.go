package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"moonvpn/internal/errs"
	"moonvpn/internal/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init(&logger.Config{Level: "error", Format: "console"})
	os.Exit(m.Run())
}

/*
fakePanel 模拟面板的 HTTP 测试服务
功能：实现登录 + 客户端管理的最小 API 面，可注入失败行为
*/
type fakePanel struct {
	mu         sync.Mutex
	loginCount int
	session    string

	clients map[string]RemoteClient

	createCalls   int
	failCreates   int  /* 前 N 次 addClient 返回 500 */
	createDespite bool /* 返回 500 的同时仍然创建客户端（歧义失败） */
	rejectCreate  bool /* 返回 success=false 业务拒绝 */
	expireSession bool /* 下一个携带旧会话的请求返回 401 */
}

func newFakePanel() *fakePanel {
	return &fakePanel{clients: make(map[string]RemoteClient)}
}

func (p *fakePanel) respond(w http.ResponseWriter, obj any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "msg": "", "obj": obj})
}

func (p *fakePanel) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.loginCount++
		p.session = fmt.Sprintf("sess-%d", p.loginCount)
		cookie := p.session
		p.mu.Unlock()

		http.SetCookie(w, &http.Cookie{Name: "3x-ui", Value: cookie})
		p.respond(w, nil)
	})

	mux.HandleFunc("/panel/api/", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()

		if !strings.Contains(r.Header.Get("Cookie"), p.session) || p.expireSession {
			p.expireSession = false
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		path := r.URL.Path
		switch {
		case path == "/panel/api/clients/list":
			out := make([]RemoteClient, 0, len(p.clients))
			for _, c := range p.clients {
				out = append(out, c)
			}
			p.respond(w, out)

		case strings.Contains(path, "/addClient"):
			p.createCalls++
			var spec ClientSpec
			json.NewDecoder(r.Body).Decode(&spec)

			if p.rejectCreate {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{"success": false, "msg": "入站已满"})
				return
			}
			if p.failCreates > 0 {
				p.failCreates--
				if p.createDespite {
					p.clients[spec.Tag] = RemoteClient{ID: "rc-" + spec.Tag, Tag: spec.Tag, Enable: spec.Enable}
				}
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			c := RemoteClient{ID: "rc-" + spec.Tag, Tag: spec.Tag, Enable: spec.Enable, TotalBytes: spec.TotalBytes}
			p.clients[spec.Tag] = c
			p.respond(w, c)

		case strings.Contains(path, "/delClient/"):
			tag := path[strings.LastIndex(path, "/")+1:]
			if _, ok := p.clients[tag]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(p.clients, tag)
			p.respond(w, nil)

		case strings.Contains(path, "/getClientTraffics/"):
			tag := path[strings.LastIndex(path, "/")+1:]
			p.respond(w, TrafficStat{Tag: tag, Up: 100, Down: 200})

		default:
			p.respond(w, nil)
		}
	})
	return mux
}

func newTestClient(t *testing.T, srv *httptest.Server, breaker *Breaker) *Client {
	t.Helper()
	return NewClient(ClientOptions{
		PanelName: "测试面板",
		Endpoint:  srv.URL,
		Username:  "admin",
		Password:  "admin",
		Retry:     fastPolicy(3),
		Breaker:   breaker,
	})
}

/*
TestClientLoginAndCreate 测试登录 + 创建客户端的完整链路
*/
func TestClientLoginAndCreate(t *testing.T) {
	panel := newFakePanel()
	srv := httptest.NewServer(panel.handler())
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	created, err := c.CreateClient(context.Background(), ClientSpec{Tag: "mv-test-1", InboundID: 1, TotalBytes: 1 << 30})
	if err != nil {
		t.Fatalf("创建客户端失败: %v", err)
	}
	if created.Tag != "mv-test-1" || created.ID == "" {
		t.Errorf("返回的客户端不匹配: %+v", created)
	}
	if panel.loginCount != 1 {
		t.Errorf("应只登录一次, 实际 %d", panel.loginCount)
	}

	/* 会话缓存：后续调用不重新登录 */
	if _, err := c.ListClients(context.Background()); err != nil {
		t.Fatalf("列出客户端失败: %v", err)
	}
	if panel.loginCount != 1 {
		t.Errorf("会话有效期内不应重新登录, 实际登录 %d 次", panel.loginCount)
	}
}

/*
TestClientSessionRefreshOn401 测试 401 后作废会话并重放
*/
func TestClientSessionRefreshOn401(t *testing.T) {
	panel := newFakePanel()
	srv := httptest.NewServer(panel.handler())
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	if _, err := c.ListClients(context.Background()); err != nil {
		t.Fatalf("首次调用失败: %v", err)
	}

	panel.mu.Lock()
	panel.expireSession = true
	panel.mu.Unlock()

	if _, err := c.ListClients(context.Background()); err != nil {
		t.Fatalf("401 后重放应成功: %v", err)
	}
	if panel.loginCount != 2 {
		t.Errorf("会话失效应触发一次重新登录, 实际登录 %d 次", panel.loginCount)
	}
}

/*
TestClientCreateRetriesTransient 测试 5xx 重试后成功
*/
func TestClientCreateRetriesTransient(t *testing.T) {
	panel := newFakePanel()
	panel.failCreates = 1
	srv := httptest.NewServer(panel.handler())
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	created, err := c.CreateClient(context.Background(), ClientSpec{Tag: "mv-retry-1", InboundID: 1})
	if err != nil {
		t.Fatalf("重试后创建应成功: %v", err)
	}
	if created.Tag != "mv-retry-1" {
		t.Errorf("返回的客户端不匹配: %+v", created)
	}
	if panel.createCalls != 2 {
		t.Errorf("应发起 2 次创建请求, 实际 %d", panel.createCalls)
	}
}

/*
TestClientCreateAdoptsExisting 测试歧义失败后按标签采用已有客户端
功能：首次创建返回 500 但远端实际已生效，重试前按标签查询，
采用已有客户端而不重复创建
*/
func TestClientCreateAdoptsExisting(t *testing.T) {
	panel := newFakePanel()
	panel.failCreates = 1
	panel.createDespite = true
	srv := httptest.NewServer(panel.handler())
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	created, err := c.CreateClient(context.Background(), ClientSpec{Tag: "mv-ambig-1", InboundID: 1})
	if err != nil {
		t.Fatalf("采用已有客户端应成功: %v", err)
	}
	if created.ID != "rc-mv-ambig-1" {
		t.Errorf("应采用远端已有的客户端: %+v", created)
	}
	if panel.createCalls != 1 {
		t.Errorf("不应重复创建: 期望 1 次创建请求, 实际 %d", panel.createCalls)
	}
	if len(panel.clients) != 1 {
		t.Errorf("远端应只有一个客户端, 实际 %d", len(panel.clients))
	}
}

/*
TestClientCreateBusinessRejectNoRetry 测试业务拒绝立即失败
*/
func TestClientCreateBusinessRejectNoRetry(t *testing.T) {
	panel := newFakePanel()
	panel.rejectCreate = true
	srv := httptest.NewServer(panel.handler())
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.CreateClient(context.Background(), ClientSpec{Tag: "mv-reject-1", InboundID: 1})
	if err == nil {
		t.Fatal("业务拒绝应返回错误")
	}
	if errs.IsTransient(err) {
		t.Errorf("业务拒绝应为永久错误: %v", err)
	}
	if panel.createCalls != 1 {
		t.Errorf("永久错误不应重试: 期望 1 次, 实际 %d", panel.createCalls)
	}
}

/*
TestClientDeleteMissingIsSuccess 测试删除不存在的客户端视为成功
*/
func TestClientDeleteMissingIsSuccess(t *testing.T) {
	panel := newFakePanel()
	srv := httptest.NewServer(panel.handler())
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	if err := c.DeleteClient(context.Background(), 1, "nonexistent"); err != nil {
		t.Errorf("删除不存在的客户端应幂等成功: %v", err)
	}
}

/*
TestClientBreakerOpenShortCircuits 测试熔断开启后不触网
*/
func TestClientBreakerOpenShortCircuits(t *testing.T) {
	panel := newFakePanel()
	panel.failCreates = 100
	srv := httptest.NewServer(panel.handler())
	defer srv.Close()

	breaker := NewBreaker(1, time.Minute)
	c := newTestClient(t, srv, breaker)

	if _, err := c.CreateClient(context.Background(), ClientSpec{Tag: "mv-trip-1", InboundID: 1}); err == nil {
		t.Fatal("持续 5xx 应失败")
	}
	if breaker.State() != BreakerOpen {
		t.Fatalf("阈值 1 的熔断器应已打开, 状态 %s", breaker.State())
	}

	/* 熔断开启后请求直接被拒，不再触达面板 */
	before := panel.createCalls
	if _, err := c.CreateClient(context.Background(), ClientSpec{Tag: "mv-trip-2", InboundID: 1}); err == nil {
		t.Fatal("熔断开启期间应失败")
	}
	if panel.createCalls != before {
		t.Errorf("熔断开启后不应触网: 创建请求从 %d 增加到 %d", before, panel.createCalls)
	}
}

/*
TestClassifyStatus 测试状态码分类
*/
func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		code      int
		transient bool
	}{
		{500, true},
		{502, true},
		{429, true},
		{400, false},
		{403, false},
		{404, false},
	}
	for _, c := range cases {
		err := classifyStatus("op", c.code)
		if errs.IsTransient(err) != c.transient {
			t.Errorf("状态码 %d 分类错误: 期望 transient=%v", c.code, c.transient)
		}
	}
}
