package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"certEngine/internal/config"
)

// Client 封装 MinIO 客户端：背景图读取、证书上传与下载链接。
type Client struct {
	internalClient *minio.Client
	publicClient   *minio.Client
	bucketName     string
}

// ObjectMeta 描述 Bucket 中对象的关键信息。
type ObjectMeta struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// NewClient 根据配置初始化 MinIO 客户端，并确保目标 Bucket 存在。
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	bucketLookup := minio.BucketLookupAuto
	switch strings.ToLower(strings.TrimSpace(cfg.BucketLookup)) {
	case "", "auto":
		bucketLookup = minio.BucketLookupAuto
	case "dns":
		bucketLookup = minio.BucketLookupDNS
	case "path":
		bucketLookup = minio.BucketLookupPath
	default:
		return nil, fmt.Errorf("invalid minio bucket lookup %q", cfg.BucketLookup)
	}

	internalClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: bucketLookup,
	})
	if err != nil {
		return nil, fmt.Errorf("init internal minio client: %w", err)
	}

	parsedPublicEndpoint, err := url.Parse(cfg.PublicEndpoint)
	if err != nil {
		return nil, fmt.Errorf("parse minio public endpoint: %w", err)
	}

	publicHost := parsedPublicEndpoint.Host
	if publicHost == "" {
		return nil, fmt.Errorf("invalid minio public endpoint, host missing")
	}

	publicClient, err := minio.New(publicHost, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       parsedPublicEndpoint.Scheme == "https",
		Region:       cfg.Region,
		BucketLookup: bucketLookup,
	})
	if err != nil {
		return nil, fmt.Errorf("init public minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := internalClient.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if !cfg.AutoCreateBucket {
			return nil, fmt.Errorf("bucket %q does not exist (auto create disabled)", cfg.Bucket)
		}
		if err := internalClient.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("make bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &Client{
		internalClient: internalClient,
		publicClient:   publicClient,
		bucketName:     cfg.Bucket,
	}, nil
}

// UploadFile 将对象上传到私有 Bucket，并返回上传结果。
func (c *Client) UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error) {
	opts := minio.PutObjectOptions{ContentType: contentType}
	info, err := c.internalClient.PutObject(ctx, c.bucketName, objectName, reader, size, opts)
	if err != nil {
		return nil, fmt.Errorf("put object %q: %w", objectName, err)
	}
	return &info, nil
}

// ReadObject 读取整个对象；超过 limit 字节时报错，limit<=0 表示不限制。
func (c *Client) ReadObject(ctx context.Context, objectKey string, limit int64) ([]byte, error) {
	obj, err := c.internalClient.GetObject(ctx, c.bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", objectKey, err)
	}
	defer obj.Close()

	var r io.Reader = obj
	if limit > 0 {
		r = io.LimitReader(obj, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		if IsNoSuchBucket(err) {
			return nil, fmt.Errorf("object %q: %w", objectKey, ErrBucketNotFound)
		}
		if IsNoSuchKey(err) {
			return nil, fmt.Errorf("object %q: %w", objectKey, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("read object %q: %w", objectKey, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("object %q exceeds %d bytes", objectKey, limit)
	}
	return data, nil
}

// GeneratePresignedURL 生成对象的限时下载链接。
func (c *Client) GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error) {
	presignedURL, err := c.publicClient.PresignedGetObject(ctx, c.bucketName, objectKey, duration, nil)
	if err != nil {
		return "", fmt.Errorf("generate presigned url for %q: %w", objectKey, err)
	}
	return presignedURL.String(), nil
}

// PresignedDownloadURL 生成带 Content-Disposition 的下载链接，浏览器会以 fileName 保存。
func (c *Client) PresignedDownloadURL(ctx context.Context, objectKey, fileName string, duration time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	presignedURL, err := c.publicClient.PresignedGetObject(ctx, c.bucketName, objectKey, duration, params)
	if err != nil {
		return "", fmt.Errorf("generate download url for %q: %w", objectKey, err)
	}
	return presignedURL.String(), nil
}

// ListObjects 列出指定前缀下的对象元数据。
func (c *Client) ListObjects(ctx context.Context, prefix string, limit int) ([]ObjectMeta, error) {
	if limit <= 0 {
		limit = 50
	}
	objCh := c.internalClient.ListObjects(ctx, c.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	result := make([]ObjectMeta, 0, limit)
	for object := range objCh {
		if object.Err != nil {
			if IsNoSuchBucket(object.Err) {
				return nil, fmt.Errorf("list objects under %q: %w", prefix, ErrBucketNotFound)
			}
			return nil, fmt.Errorf("list objects under %q: %w", prefix, object.Err)
		}
		meta := ObjectMeta{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		}
		result = append(result, meta)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// DeleteObject 删除指定对象；对象不存在视为成功。
func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	objectKey = strings.TrimSpace(objectKey)
	if objectKey == "" {
		return nil
	}
	err := c.internalClient.RemoveObject(ctx, c.bucketName, objectKey, minio.RemoveObjectOptions{})
	if err != nil && !IsNoSuchKey(err) {
		return fmt.Errorf("remove object %q: %w", objectKey, err)
	}
	return nil
}

// DeletePrefix 批量删除前缀下的所有对象，用于清理某活动（或某类型）已生成的证书。
// 已不存在的对象会被忽略，其余失败聚合为一个错误返回。
func (c *Client) DeletePrefix(ctx context.Context, prefix string) error {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	listErr := make(chan error, 1)
	toDelete := make(chan minio.ObjectInfo)
	go func() {
		defer close(toDelete)
		defer close(listErr)
		for object := range c.internalClient.ListObjects(listCtx, c.bucketName, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if object.Err != nil {
				listErr <- object.Err
				return
			}
			select {
			case toDelete <- object:
			case <-listCtx.Done():
				return
			}
		}
	}()

	var errs []error
	for result := range c.internalClient.RemoveObjects(ctx, c.bucketName, toDelete, minio.RemoveObjectsOptions{}) {
		if result.Err != nil && !IsNoSuchKey(result.Err) {
			errs = append(errs, fmt.Errorf("remove %q: %w", result.ObjectName, result.Err))
		}
	}
	if err := <-listErr; err != nil {
		if IsNoSuchBucket(err) {
			return fmt.Errorf("list objects under %q: %w", prefix, ErrBucketNotFound)
		}
		errs = append(errs, fmt.Errorf("list objects under %q: %w", prefix, err))
	}
	return errors.Join(errs...)
}
