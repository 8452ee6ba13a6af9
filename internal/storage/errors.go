package storage

import (
	"errors"
	"strings"

	"github.com/minio/minio-go/v7"
)

var (
	// ErrObjectNotFound is returned by ReadObject when the key does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrBucketNotFound 表示配置的 Bucket 已被删除或从未创建。
	ErrBucketNotFound = errors.New("bucket not found")
)

// s3Code 返回 S3 错误码（小写）；非 S3 响应时返回空串。
func s3Code(err error) string {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return strings.ToLower(strings.TrimSpace(resp.Code))
	}
	return ""
}

// 网关或代理可能只透传错误文本，按消息兜底匹配。
func messageHas(err error, needles ...string) bool {
	lower := strings.ToLower(err.Error())
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// IsNoSuchKey reports whether err means the object does not exist.
func IsNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrObjectNotFound) {
		return true
	}
	switch s3Code(err) {
	case "nosuchkey", "notfound":
		return true
	case "":
		return messageHas(err, "nosuchkey", "specified key does not exist", "not found")
	}
	return false
}

// IsNoSuchBucket reports whether err means the bucket does not exist.
func IsNoSuchBucket(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBucketNotFound) {
		return true
	}
	if code := s3Code(err); code != "" {
		return code == "nosuchbucket"
	}
	return messageHas(err, "nosuchbucket", "specified bucket does not exist")
}
