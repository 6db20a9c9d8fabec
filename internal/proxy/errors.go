package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/gofiber/fiber/v3"
)

// 客户端可见的错误码，写入 JSON 响应体的 error 字段。
const (
	errorCodeUpstreamStatus      = "upstream_status"
	errorCodeUpstreamUnreachable = "upstream_unreachable"
	errorCodeInternal            = "internal_error"
)

// UpstreamHTTPError 表示上游返回了非 200 状态码，状态码与原因短语原样透传给客户端。
type UpstreamHTTPError struct {
	Code   int
	Reason string
}

func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("upstream returned %d %s", e.Code, e.Reason)
}

// UpstreamConnectionError 覆盖 DNS、拨号、TLS、超时与正文读取失败。
type UpstreamConnectionError struct {
	Reason string
	Err    error
}

func (e *UpstreamConnectionError) Error() string {
	return "Upstream error: " + e.Reason
}

func (e *UpstreamConnectionError) Unwrap() error {
	return e.Err
}

// UnexpectedError 是其余所有失败（请求构造、缓存写入等）。
type UnexpectedError struct {
	Detail string
	Err    error
}

func (e *UnexpectedError) Error() string {
	return e.Detail
}

func (e *UnexpectedError) Unwrap() error {
	return e.Err
}

// classifyError 把错误映射为 HTTP 状态码、错误码与消息。
func classifyError(err error) (int, string, string) {
	var httpErr *UpstreamHTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, errorCodeUpstreamStatus, httpErr.Reason
	}
	var connErr *UpstreamConnectionError
	if errors.As(err, &connErr) {
		return fiber.StatusBadGateway, errorCodeUpstreamUnreachable, connErr.Error()
	}
	return fiber.StatusInternalServerError, errorCodeInternal, err.Error()
}

// connectionReason 去掉 *url.Error 的 "Get <url>:" 前缀，只保留底层原因。
func connectionReason(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	return err.Error()
}
