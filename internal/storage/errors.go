package storage

import (
	"errors"

	"github.com/minio/minio-go/v7"
)

// ErrObjectNotFound 表示 bucket 中不存在该 key。ReadObject 会包装此错误。
var ErrObjectNotFound = errors.New("storage: object not found")

// isMissing 识别 MinIO/S3 的 NoSuchKey 响应。
func isMissing(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrObjectNotFound) {
		return true
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
	}
	return false
}
