package api

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"

	"certEngine/internal/certificate"
	"certEngine/internal/config"
	"certEngine/internal/editor"
	"certEngine/internal/storage"
	"certEngine/internal/store"
)

// ObjectStore is the slice of *storage.Client the handlers use.
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	ListObjects(ctx context.Context, prefix string, limit int) ([]storage.ObjectMeta, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	PresignedDownloadURL(ctx context.Context, objectKey, fileName string, duration time.Duration) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// TaskEnqueuer 由 *asynq.Client 实现。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Deps 汇总路由所需的依赖；Redis、Tasks、Scanner 可为空，对应功能会被关闭。
type Deps struct {
	Config     *config.Config
	Store      store.Backend
	Compositor *certificate.Compositor
	// Direct is a compositor built with RequireTemplate.
	Direct  *certificate.Compositor
	Images  certificate.ImageFetcher
	Metrics certificate.Metrics
	Canvas  *editor.Canvas
	Objects ObjectStore
	Tasks   TaskEnqueuer
	Redis   *redis.Client
	Scanner VirusScanner
	Logger  *slog.Logger
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	origins := deps.Config.API.Origins()
	var limiter redisRateCounter
	if deps.Redis != nil {
		limiter = deps.Redis
	}

	templateHandler := NewTemplateHandler(deps.Store, deps.Compositor.Resolver(), deps.Canvas, deps.Images, deps.Tasks, deps.Logger)
	certificateHandler := NewCertificateHandler(deps.Config, deps.Store, deps.Compositor, deps.Direct, deps.Objects, deps.Tasks, limiter, deps.Logger)
	assetHandler := NewAssetHandler(deps.Objects, deps.Scanner, deps.Config.API.MaxUploadBytes, deps.Logger)
	editorHandler := NewEditorHandler(deps.Store, deps.Metrics, deps.Canvas, deps.Images, deps.Compositor.Page(), origins, deps.Logger)

	v1 := router.Group("/v1")
	{
		if deps.Redis != nil {
			wsHandler := NewWsHandler(deps.Redis, deps.Logger, origins)
			v1.GET("/ws", wsHandler.HandleConnection)
		}

		certGroup := v1.Group("/certificates")
		{
			certGroup.POST("/generate", certificateHandler.Generate)
			certGroup.POST("/direct", certificateHandler.GenerateDirect)
		}

		eventGroup := v1.Group("/events/:eventId")
		{
			eventGroup.GET("/templates", templateHandler.ListTemplates)
			eventGroup.GET("/templates/:kind", templateHandler.GetTemplate)
			eventGroup.PUT("/templates/:kind", templateHandler.PutTemplate)
			eventGroup.POST("/templates/:kind/preview", templateHandler.Preview)

			eventGroup.GET("/editor", editorHandler.HandleConnection)

			eventGroup.POST("/certificates/archive", certificateHandler.Archive)
			eventGroup.POST("/certificates/batch", certificateHandler.EnqueueBatch)
			eventGroup.GET("/certificates", certificateHandler.ListGenerated)
			eventGroup.DELETE("/certificates", certificateHandler.DeleteGenerated)
			eventGroup.DELETE("/certificates/file", certificateHandler.DeleteGeneratedFile)

			eventGroup.POST("/assets", assetHandler.UploadAsset)
			eventGroup.GET("/assets", assetHandler.ListAssets)
			eventGroup.GET("/assets/view", assetHandler.GetAssetURL)
		}
	}
}
