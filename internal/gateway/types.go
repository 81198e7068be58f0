package gateway

import "time"

/*
ClientSpec 创建/更新远程客户端的参数
Tag 是幂等标签：同一标签的重复创建在远程面板上只产生一个客户端
*/
type ClientSpec struct {
	Tag        string `json:"tag"`
	RemoteID   string `json:"remoteId"`
	InboundID  int    `json:"inboundId"`
	Protocol   string `json:"protocol"`
	TotalBytes int64  `json:"totalBytes"`
	ExpiryTime int64  `json:"expiryTime"` // 毫秒时间戳，0 表示不限
	Enable     bool   `json:"enable"`
	Params     string `json:"params,omitempty"`
}

/*
RemoteClient 远程面板上的客户端
*/
type RemoteClient struct {
	ID         string `json:"id"`
	Tag        string `json:"tag"`
	InboundID  int    `json:"inboundId"`
	Enable     bool   `json:"enable"`
	TotalBytes int64  `json:"totalBytes"`
	ExpiryTime int64  `json:"expiryTime"`
}

/*
TrafficStat 客户端流量读数
*/
type TrafficStat struct {
	Tag   string `json:"tag"`
	Up    int64  `json:"up"`
	Down  int64  `json:"down"`
	Total int64  `json:"total"`
}

/*
Used 返回已用流量（上行+下行）
*/
func (t *TrafficStat) Used() int64 {
	return t.Up + t.Down
}

/*
InboundInfo 远程面板上的入站
*/
type InboundInfo struct {
	ID       int    `json:"id"`
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
	Remark   string `json:"remark"`
	Enable   bool   `json:"enable"`
}

/*
session 已认证的面板会话
*/
type session struct {
	cookie    string
	expiresAt time.Time
}

func (s *session) valid() bool {
	return s != nil && s.cookie != "" && time.Now().Before(s.expiresAt)
}

/*
apiResponse 面板 API 的统一响应包裹
*/
type apiResponse struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
	Obj     any    `json:"obj"`
}
