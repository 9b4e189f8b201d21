// Package correlation 在 context 中传递请求的 Correlation ID，
// HTTP 中间件写入，异步任务投递时读取。
package correlation

import "context"

type ctxKey struct{}

// WithID 返回携带 id 的 context。
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext 读取 WithID 写入的 id，不存在时返回空串。
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
