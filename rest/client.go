package rest

import (
	"EdgeChat/config"
	"EdgeChat/logger"
	log "log/slog"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TokenFunc 返回当前的 Bearer 凭据；为空表示未登录
type TokenFunc func() string

// Client REST 后端客户端，聊天核心唯一的请求/响应出口
type Client struct {
	http    *resty.Client
	tokenFn TokenFunc
}

// NewClient 构造 REST 客户端
func NewClient(cfg *config.Config, tokenFn TokenFunc) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.API.BaseURL, "/")+"/api/v1").
		SetTimeout(cfg.API.Timeout).
		SetHeader("Accept", "application/json")

	httpClient.JSONMarshal = json.Marshal
	httpClient.JSONUnmarshal = json.Unmarshal

	// 每个请求注入 trace_id 与鉴权头
	httpClient.OnBeforeRequest(func(c *resty.Client, r *resty.Request) error {
		traceID := uuid.New().String()
		r.SetHeader("X-Trace-ID", traceID)
		r.SetContext(logger.WithTraceID(r.Context(), traceID))

		if tok := tokenFn(); tok != "" {
			r.SetHeader("Authorization", "Bearer "+tok)
		}
		return nil
	})

	httpClient.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		if resp.IsError() {
			log.Warn("REST 请求失败",
				"method", resp.Request.Method,
				"url", resp.Request.URL,
				"status", resp.StatusCode())
		}
		return nil
	})

	return &Client{http: httpClient, tokenFn: tokenFn}
}

// check 统一的响应校验与错误包装
func (c *Client) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return errors.Wrap(err, op)
	}
	if resp.IsError() {
		return errors.Errorf("%s: status %d", op, resp.StatusCode())
	}
	return nil
}
