package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Signer 是签名所需的最小存储能力，便于测试替换。
type Signer interface {
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
}

// Issuer 把对象引用转换为限时可访问的 URL。
// 签名 URL 会过期，因此只在读路径上即时生成，从不落库。
type Issuer struct {
	signer Signer
	ttl    time.Duration
	logger *slog.Logger
}

// NewIssuer 构造 Issuer；ttl 为签名有效期。
func NewIssuer(signer Signer, ttl time.Duration, logger *slog.Logger) *Issuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{signer: signer, ttl: ttl, logger: logger}
}

// IssueAccessURL 为单个引用签发 URL。http(s) 外部地址原样返回。
func (i *Issuer) IssueAccessURL(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("empty object reference")
	}
	if IsExternalURL(ref) {
		return ref, nil
	}
	return i.signer.GeneratePresignedURL(ctx, ref, i.ttl)
}

// IssueAll 依序签发多个引用；签名失败的条目被跳过而不是中断整个列表。
func (i *Issuer) IssueAll(ctx context.Context, refs []string) []string {
	urls := make([]string, 0, len(refs))
	for _, ref := range refs {
		u, err := i.IssueAccessURL(ctx, ref)
		if err != nil {
			i.logger.Warn("issue access url failed",
				slog.String("object_key", ref),
				slog.Any("error", err),
			)
			continue
		}
		urls = append(urls, u)
	}
	return urls
}

// IsExternalURL 判断引用是否为可直接访问的 http(s) 地址。
func IsExternalURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}

// ParseS3URI 拆分 s3://bucket/key 形式的地址。
func ParseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return "", "", fmt.Errorf("parse s3 uri %q: %w", uri, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
