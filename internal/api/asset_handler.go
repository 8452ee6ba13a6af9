package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"certEngine/internal/api/middleware"
	"certEngine/internal/storage"
)

// VirusScanner 在上传前检查文件内容；返回 errInfected 表示拒绝。
type VirusScanner interface {
	Scan(r io.Reader) error
}

var errInfected = errors.New("malicious file detected")

// ClamdScanner 通过 clamd 的 INSTREAM 命令扫描。
type ClamdScanner struct {
	client *clamd.Clamd
}

// NewClamdScanner 返回连接 addr（如 tcp://clamav:3310）的扫描器。
func NewClamdScanner(addr string) *ClamdScanner {
	return &ClamdScanner{client: clamd.NewClamd(addr)}
}

func (s *ClamdScanner) Scan(r io.Reader) error {
	abort := make(chan bool)
	defer close(abort)
	results, err := s.client.ScanStream(r, abort)
	if err != nil {
		return fmt.Errorf("scan file: %w", err)
	}
	var infected bool
	for result := range results {
		if result.Status != clamd.RES_OK {
			infected = true
		}
	}
	if infected {
		return errInfected
	}
	return nil
}

// AssetHandler 负责背景图上传与访问。
type AssetHandler struct {
	Storage  ObjectStore
	Scanner  VirusScanner
	MaxBytes int64
	Logger   *slog.Logger
}

// NewAssetHandler 返回 AssetHandler 实例；scanner 为空时跳过病毒扫描。
func NewAssetHandler(objects ObjectStore, scanner VirusScanner, maxBytes int64, logger *slog.Logger) *AssetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetHandler{
		Storage:  objects,
		Scanner:  scanner,
		MaxBytes: maxBytes,
		Logger:   logger,
	}
}

var imageExtByType = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// UploadAsset 处理背景图上传：嗅探类型、病毒扫描，然后写入 template-assets/<eventId>/。
// POST /v1/events/:eventId/assets
func (h *AssetHandler) UploadAsset(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if h.MaxBytes > 0 && file.Size > h.MaxBytes {
		Error(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", h.MaxBytes))
		return
	}

	fileReader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	head := make([]byte, 512)
	n, _ := io.ReadFull(fileReader, head)
	fileReader.Close()
	contentType := http.DetectContentType(head[:n])
	ext, ok := imageExtByType[contentType]
	if !ok {
		BadRequest(c, "only png, jpeg and webp images are accepted")
		return
	}

	if h.Scanner != nil {
		fileReader, err = file.Open()
		if err != nil {
			Internal(c, "failed to open file")
			return
		}
		err = h.Scanner.Scan(fileReader)
		fileReader.Close()
		if errors.Is(err, errInfected) {
			BadRequest(c, errInfected.Error())
			return
		}
		if err != nil {
			h.Logger.Error("scan file", slog.String("error", err.Error()))
			Internal(c, "failed to scan file")
			return
		}
	}

	fileReader, err = file.Open()
	if err != nil {
		Internal(c, "failed to reopen file")
		return
	}
	defer fileReader.Close()

	objectKey := storage.TemplateAssetPrefix(eventID) + uuid.NewString() + ext
	if _, err := h.Storage.UploadFile(c.Request.Context(), objectKey, fileReader, file.Size, contentType); err != nil {
		middleware.LoggerFromContext(c).Error("upload file", slog.String("error", err.Error()))
		Internal(c, "failed to upload file")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"objectKey": objectKey})
}

// ListAssets 列出活动已上传的背景图。
// GET /v1/events/:eventId/assets
func (h *AssetHandler) ListAssets(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "60"))
	if err != nil || limit <= 0 {
		limit = 60
	}
	if limit > 200 {
		limit = 200
	}

	objects, err := h.Storage.ListObjects(c.Request.Context(), storage.TemplateAssetPrefix(eventID), limit)
	if err != nil {
		h.Logger.Error("list assets", slog.String("error", err.Error()))
		Internal(c, "failed to list assets")
		return
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	items := make([]gin.H, 0, len(objects))
	for _, obj := range objects {
		url, err := h.Storage.GeneratePresignedURL(c.Request.Context(), obj.Key, 10*time.Minute)
		if err != nil {
			h.Logger.Error("generate asset url", slog.String("objectKey", obj.Key), slog.String("error", err.Error()))
			continue
		}
		items = append(items, gin.H{
			"objectKey":    obj.Key,
			"previewUrl":   url,
			"size":         obj.Size,
			"lastModified": obj.LastModified,
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetAssetURL 返回背景图的临时预签名 URL。
// GET /v1/events/:eventId/assets/view?key=
func (h *AssetHandler) GetAssetURL(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}
	if !storage.IsTemplateAssetKey(eventID, objectKey) {
		Forbidden(c, "access denied")
		return
	}

	signedURL, err := h.Storage.GeneratePresignedURL(c.Request.Context(), objectKey, 15*time.Minute)
	if err != nil {
		h.Logger.Error("generate presigned url", slog.String("error", err.Error()))
		Internal(c, "failed to generate url")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}
