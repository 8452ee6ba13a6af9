package api

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"certEngine/internal/api/middleware"
	"certEngine/internal/batch"
	"certEngine/internal/certificate"
	"certEngine/internal/config"
	"certEngine/internal/metrics"
	"certEngine/internal/storage"
	"certEngine/internal/store"
	"certEngine/internal/tasks"
)

const (
	archiveRateLimit  = 5
	archiveRateWindow = time.Minute
	downloadURLTTL    = 15 * time.Minute
	maxListedObjects  = 1000
)

// CertificateHandler 负责单张生成、直发生成、打包下载与批量任务。
type CertificateHandler struct {
	cfg        *config.Config
	records    store.Backend
	compositor *certificate.Compositor
	direct     *certificate.Compositor
	objects    ObjectStore
	tasks      TaskEnqueuer
	archives   *fixedWindow
	logger     *slog.Logger
}

func NewCertificateHandler(
	cfg *config.Config,
	records store.Backend,
	compositor *certificate.Compositor,
	direct *certificate.Compositor,
	objects ObjectStore,
	tasks TaskEnqueuer,
	limiter redisRateCounter,
	logger *slog.Logger,
) *CertificateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &CertificateHandler{
		cfg:        cfg,
		records:    records,
		compositor: compositor,
		direct:     direct,
		objects:    objects,
		tasks:      tasks,
		logger:     logger,
	}
	if limiter != nil {
		h.archives = newFixedWindow(limiter, "archive_rate", archiveRateLimit, archiveRateWindow)
	}
	return h
}

type generateRequest struct {
	ReferenceID  string `json:"referenceId" binding:"required,max=128"`
	TemplateType string `json:"templateType" binding:"certkind"`
}

type archiveRequest struct {
	ReferenceIDs []string `json:"referenceIds" binding:"omitempty,dive,required,max=128"`
	TemplateType string   `json:"templateType" binding:"certkind"`
}

type batchRequest struct {
	ReferenceIDs []string `json:"referenceIds" binding:"omitempty,dive,required,max=128"`
	TemplateType string   `json:"templateType" binding:"certkind"`
}

// POST /v1/certificates/generate
func (h *CertificateHandler) Generate(c *gin.Context) {
	h.generate(c, h.compositor, func(cert *certificate.Certificate) string { return cert.FileName })
}

// POST /v1/certificates/direct
// 直发模式：活动未保存该类型模板时拒绝生成，文件名带类型标签。
func (h *CertificateHandler) GenerateDirect(c *gin.Context) {
	h.generate(c, h.direct, func(cert *certificate.Certificate) string { return cert.LabeledFileName() })
}

func (h *CertificateHandler) generate(c *gin.Context, comp *certificate.Compositor, fileName func(*certificate.Certificate) string) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	kind, ok := kindParam(c, req.TemplateType)
	if !ok {
		return
	}

	start := time.Now()
	cert, err := comp.Generate(c.Request.Context(), req.ReferenceID, kind)
	metrics.ObserveCertificate(kind, cert, err, time.Since(start))
	if err != nil {
		respondError(c, err, "failed to generate certificate")
		return
	}

	if tags := fallbackHeader(cert.Template); tags != "" {
		c.Header("X-Template-Fallback", tags)
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName(cert)))
	c.Data(http.StatusOK, "application/pdf", cert.Bytes)
}

func fallbackHeader(t certificate.ResolvedTemplate) string {
	var parts []string
	if t.FieldsFallback != certificate.FallbackNone {
		parts = append(parts, "fields="+string(t.FieldsFallback))
	}
	if t.ImageFallback != certificate.FallbackNone {
		parts = append(parts, "image="+string(t.ImageFallback))
	}
	return strings.Join(parts, ", ")
}

// archiveEntry 是 report.json 中的一行。
type archiveEntry struct {
	ReferenceID string           `json:"referenceId"`
	Status      string           `json:"status"`
	FileName    string           `json:"fileName,omitempty"`
	Step        certificate.Step `json:"step,omitempty"`
	Error       string           `json:"error,omitempty"`
	Fallbacks   string           `json:"fallbacks,omitempty"`
}

type archiveReport struct {
	EventID      uint             `json:"eventId"`
	TemplateType certificate.Kind `json:"templateType"`
	Total        int              `json:"total"`
	Succeeded    int              `json:"succeeded"`
	Failed       int              `json:"failed"`
	Canceled     bool             `json:"canceled,omitempty"`
	Items        []archiveEntry   `json:"items"`
}

// POST /v1/events/:eventId/certificates/archive
// 同步生成并以 zip 流式返回；单个参会者失败只记录在 report.json 中。
func (h *CertificateHandler) Archive(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	var req archiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	kind, ok := kindParam(c, req.TemplateType)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c)

	refs, err := h.references(c, eventID, req.ReferenceIDs)
	if err != nil {
		respondError(c, err, "failed to list attendees")
		return
	}
	if len(refs) == 0 {
		BadRequest(c, "no attendees to generate")
		return
	}
	if limit := h.cfg.API.MaxArchiveSize; limit > 0 && len(refs) > limit {
		Error(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d certificates per archive; use the batch endpoint", limit))
		return
	}
	if h.archives != nil {
		allowed, retryAfter, err := h.archives.Allow(ctx, eventID)
		if err != nil {
			log.Warn("archive rate counter failed", slog.Any("error", err))
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			Error(c, http.StatusTooManyRequests, "too many archive requests, try again later")
			return
		}
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("Certificates_%d_%s.zip", eventID, kind.Label())))
	c.Status(http.StatusOK)

	zw := zip.NewWriter(c.Writer)
	report := archiveReport{EventID: eventID, TemplateType: kind, Total: len(refs)}
	used := make(certificate.NameSet, len(refs))

	driver := batch.NewDriver(h.compositor, h.cfg.Certificate.BatchDelay, log)
	run, err := driver.Run(ctx, refs, kind, func(_ context.Context, item batch.Item) error {
		entry := archiveEntry{ReferenceID: item.ReferenceID}
		var cert *certificate.Certificate
		if item.OK() {
			cert = item.Certificate
		}
		metrics.ObserveCertificate(kind, cert, item.Err, item.Elapsed)

		switch {
		case item.Err != nil:
			entry.Status = "failed"
			entry.Error = item.Err.Error()
			entry.Step, _ = certificate.FailedStep(item.Err)
		case cert.Event.ID != eventID:
			entry.Status = "failed"
			entry.Step = certificate.StepValidate
			entry.Error = fmt.Sprintf("attendee belongs to event %d", cert.Event.ID)
		default:
			name := used.Claim(cert.FileName, item.ReferenceID)
			w, err := zw.Create(name)
			if err != nil {
				return err
			}
			if _, err := w.Write(cert.Bytes); err != nil {
				return err
			}
			entry.Status = "ok"
			entry.FileName = name
			entry.Fallbacks = fallbackHeader(cert.Template)
		}
		if entry.Status == "ok" {
			report.Succeeded++
		} else {
			report.Failed++
		}
		report.Items = append(report.Items, entry)
		return nil
	})
	report.Canceled = run.Canceled
	if err != nil {
		log.Error("archive stopped", slog.Any("error", err))
	}

	if w, err := zw.Create("report.json"); err == nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	if err := zw.Close(); err != nil {
		log.Error("close archive failed", slog.Any("error", err))
	}
	log.Info("archive completed",
		slog.String("kind", string(kind)),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
	)
}

func (h *CertificateHandler) references(c *gin.Context, eventID uint, refs []string) ([]string, error) {
	if len(refs) > 0 {
		return refs, nil
	}
	attendees, err := h.records.ListAttendees(c.Request.Context(), eventID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(attendees))
	for _, a := range attendees {
		out = append(out, a.ReferenceID)
	}
	return out, nil
}

// POST /v1/events/:eventId/certificates/batch
// 入队后立即返回，进度通过 /v1/ws?event_id= 推送。
func (h *CertificateHandler) EnqueueBatch(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	if h.tasks == nil {
		Error(c, http.StatusServiceUnavailable, "batch queue is not configured")
		return
	}
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	kind, ok := kindParam(c, req.TemplateType)
	if !ok {
		return
	}

	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewCertificateBatchTask(tasks.CertificateBatchPayload{
		EventID:       eventID,
		Kind:          kind,
		ReferenceIDs:  req.ReferenceIDs,
		CorrelationID: correlationID,
	})
	if err != nil {
		respondError(c, err, "invalid batch")
		return
	}
	info, err := h.tasks.EnqueueContext(c.Request.Context(), task, asynq.MaxRetry(3), asynq.Timeout(30*time.Minute))
	if err != nil {
		respondError(c, err, "failed to enqueue batch")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"taskId":        info.ID,
		"correlationId": correlationID,
		"channel":       fmt.Sprintf("event_notify:%d", eventID),
	})
}

type generatedItem struct {
	ObjectKey    string           `json:"objectKey"`
	ReferenceID  string           `json:"referenceId"`
	TemplateType certificate.Kind `json:"templateType"`
	FileName     string           `json:"fileName"`
	Size         int64            `json:"size"`
	LastModified time.Time        `json:"lastModified"`
	DownloadURL  string           `json:"downloadUrl,omitempty"`
}

// GET /v1/events/:eventId/certificates?templateType=
func (h *CertificateHandler) ListGenerated(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	kind, ok := optionalKind(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	prefix := storage.CertificatePrefix(eventID, kind)
	objects, err := h.objects.ListObjects(ctx, prefix, maxListedObjects)
	if err != nil {
		respondError(c, err, "failed to list certificates")
		return
	}
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	root := storage.CertificatePrefix(eventID, "")
	items := make([]generatedItem, 0, len(objects))
	for _, obj := range objects {
		// <kind>/<ref>/<file>
		parts := strings.SplitN(strings.TrimPrefix(obj.Key, root), "/", 3)
		if len(parts) != 3 {
			continue
		}
		item := generatedItem{
			ObjectKey:    obj.Key,
			ReferenceID:  parts[1],
			TemplateType: certificate.Kind(parts[0]),
			FileName:     path.Base(obj.Key),
			Size:         obj.Size,
			LastModified: obj.LastModified,
		}
		url, err := h.objects.PresignedDownloadURL(ctx, obj.Key, item.FileName, downloadURLTTL)
		if err != nil {
			middleware.LoggerFromContext(c).Warn("generate download url failed", slog.String("object_key", obj.Key), slog.Any("error", err))
		} else {
			item.DownloadURL = url
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// DELETE /v1/events/:eventId/certificates?templateType=
func (h *CertificateHandler) DeleteGenerated(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	kind, ok := optionalKind(c)
	if !ok {
		return
	}
	if err := h.objects.DeletePrefix(c.Request.Context(), storage.CertificatePrefix(eventID, kind)); err != nil {
		respondError(c, err, "failed to delete certificates")
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /v1/events/:eventId/certificates/file?key=
// 删除单个已生成证书，key 必须属于该活动。
func (h *CertificateHandler) DeleteGeneratedFile(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	key := strings.TrimSpace(c.Query("key"))
	if !storage.IsCertificateKey(eventID, key) {
		BadRequest(c, "invalid certificate key")
		return
	}
	if err := h.objects.DeleteObject(c.Request.Context(), key); err != nil {
		respondError(c, err, "failed to delete certificate")
		return
	}
	c.Status(http.StatusNoContent)
}

// optionalKind 读取 ?templateType=，缺省表示全部类型。
func optionalKind(c *gin.Context) (certificate.Kind, bool) {
	raw := c.Query("templateType")
	if raw == "" {
		return "", true
	}
	kind := certificate.Kind(strings.ToLower(raw))
	if !kind.Valid() {
		BadRequest(c, "unknown template type")
		return "", false
	}
	return kind, true
}
