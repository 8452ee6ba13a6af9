package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"certEngine/internal/api/middleware"
	"certEngine/internal/assets"
	"certEngine/internal/certificate"
	"certEngine/internal/editor"
	"certEngine/internal/storage"
	"certEngine/internal/tasks"
)

// TemplateHandler 负责 (活动, 模板类型) 模板的读取、整体替换与预览。
type TemplateHandler struct {
	store    certificate.TemplateStore
	resolver *certificate.TemplateResolver
	canvas   *editor.Canvas
	images   certificate.ImageFetcher
	tasks    TaskEnqueuer
	logger   *slog.Logger
}

func NewTemplateHandler(
	store certificate.TemplateStore,
	resolver *certificate.TemplateResolver,
	canvas *editor.Canvas,
	images certificate.ImageFetcher,
	tasks TaskEnqueuer,
	logger *slog.Logger,
) *TemplateHandler {
	return &TemplateHandler{
		store:    store,
		resolver: resolver,
		canvas:   canvas,
		images:   images,
		tasks:    tasks,
		logger:   logger,
	}
}

type templateFieldRequest struct {
	ID         string  `json:"id" binding:"required"`
	Label      string  `json:"label"`
	Value      string  `json:"value"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	FontSize   float64 `json:"fontSize" binding:"gt=0"`
	FontWeight string  `json:"fontWeight" binding:"oneof=normal bold"`
	Color      string  `json:"color" binding:"certcolor"`
	Align      string  `json:"align" binding:"oneof=left center right"`
}

type putTemplateRequest struct {
	ImageURL string                 `json:"imageUrl" binding:"required"`
	Fields   []templateFieldRequest `json:"fields" binding:"required,dive"`
}

type previewRequest struct {
	ImageURL string                 `json:"imageUrl"`
	Fields   []templateFieldRequest `json:"fields" binding:"omitempty,dive"`
	// Sample 为 nil 或 true 时替换为示例值，false 时显示原始占位符。
	Sample *bool `json:"sample"`
}

type storedTemplateResponse struct {
	ImageURL string                  `json:"imageUrl"`
	Fields   []certificate.TextField `json:"fields"`
}

type resolvedTemplateResponse struct {
	ImageURL       string                     `json:"imageUrl"`
	Fields         []certificate.TextField    `json:"fields"`
	FieldsFallback certificate.FallbackReason `json:"fieldsFallback,omitempty"`
	ImageFallback  certificate.FallbackReason `json:"imageFallback,omitempty"`
}

type templateResponse struct {
	EventID      uint                     `json:"eventId"`
	TemplateType certificate.Kind         `json:"templateType"`
	Template     *storedTemplateResponse  `json:"template"`
	Resolved     resolvedTemplateResponse `json:"resolved"`
}

func toFields(in []templateFieldRequest) []certificate.TextField {
	out := make([]certificate.TextField, 0, len(in))
	for _, f := range in {
		out = append(out, certificate.TextField{
			ID:         strings.TrimSpace(f.ID),
			Label:      f.Label,
			Value:      f.Value,
			X:          f.X,
			Y:          f.Y,
			FontSize:   f.FontSize,
			FontWeight: certificate.FontWeight(f.FontWeight),
			Color:      f.Color,
			Align:      certificate.Align(f.Align),
		})
	}
	return out
}

// validImageRef 接受本活动上传的背景图对象键、http(s) URL 或内置默认背景。
func validImageRef(eventID uint, ref string) bool {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == certificate.DefaultBackgroundRef:
		return true
	case strings.HasPrefix(ref, "https://"), strings.HasPrefix(ref, "http://"):
		return len(ref) <= 2048
	case strings.HasPrefix(ref, assets.BundledPrefix):
		return false
	default:
		return storage.IsTemplateAssetKey(eventID, ref)
	}
}

func (h *TemplateHandler) describe(ctx context.Context, eventID uint, kind certificate.Kind) (templateResponse, error) {
	resp := templateResponse{EventID: eventID, TemplateType: kind}
	stored, err := h.store.GetTemplate(ctx, eventID, kind)
	switch {
	case err == nil:
		resp.Template = &storedTemplateResponse{ImageURL: stored.ImageURL, Fields: stored.Fields}
	case !errors.Is(err, certificate.ErrNotFound):
		return resp, err
	}
	r := h.resolver.Resolve(ctx, eventID, kind)
	resp.Resolved = resolvedTemplateResponse{
		ImageURL:       r.ImageRef,
		Fields:         r.Fields,
		FieldsFallback: r.FieldsFallback,
		ImageFallback:  r.ImageFallback,
	}
	return resp, nil
}

// GET /v1/events/:eventId/templates/:kind
// 返回已保存的记录（无则为 null）以及实际生成时会使用的字段与背景。
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	kind, ok := kindParam(c, c.Param("kind"))
	if !ok {
		return
	}
	resp, err := h.describe(c.Request.Context(), eventID, kind)
	if err != nil {
		respondError(c, err, "failed to load template")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GET /v1/events/:eventId/templates
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	items := make([]templateResponse, 0, 3)
	for _, kind := range certificate.Kinds() {
		resp, err := h.describe(c.Request.Context(), eventID, kind)
		if err != nil {
			respondError(c, err, "failed to load templates")
			return
		}
		items = append(items, resp)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// PUT /v1/events/:eventId/templates/:kind
// 整体替换：字段列表与背景图一起写入，随后异步刷新缩略图。
func (h *TemplateHandler) PutTemplate(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	kind, ok := kindParam(c, c.Param("kind"))
	if !ok {
		return
	}

	var req putTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if !validImageRef(eventID, req.ImageURL) {
		BadRequest(c, "imageUrl must be an uploaded background of this event or an http(s) URL")
		return
	}
	fields := toFields(req.Fields)
	if err := certificate.ValidateFields(fields); err != nil {
		respondError(c, err, "invalid fields")
		return
	}

	t := certificate.Template{
		EventID:  eventID,
		Kind:     kind,
		ImageURL: strings.TrimSpace(req.ImageURL),
		Fields:   fields,
	}
	if err := h.store.PutTemplate(c.Request.Context(), t); err != nil {
		respondError(c, err, "failed to save template")
		return
	}

	if h.tasks != nil {
		task, err := tasks.NewTemplatePreviewTask(eventID, kind, middleware.GetCorrelationID(c))
		if err == nil {
			_, err = h.tasks.EnqueueContext(c.Request.Context(), task)
		}
		if err != nil {
			middleware.LoggerFromContext(c).Warn("enqueue template preview failed", slog.Any("error", err))
		}
	}

	c.JSON(http.StatusOK, templateResponse{
		EventID:      eventID,
		TemplateType: kind,
		Template:     &storedTemplateResponse{ImageURL: t.ImageURL, Fields: t.Fields},
		Resolved:     resolvedTemplateResponse{ImageURL: t.ImageURL, Fields: t.Fields},
	})
}

const (
	defaultPreviewScale = 1.0
	maxPreviewScale     = 3.0
)

// POST /v1/events/:eventId/templates/:kind/preview?scale=1
// 请求体可携带未保存的草稿；省略字段时使用已保存（或默认）模板。
func (h *TemplateHandler) Preview(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	kind, ok := kindParam(c, c.Param("kind"))
	if !ok {
		return
	}

	var req previewRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, err.Error())
			return
		}
	}

	scale := defaultPreviewScale
	if raw := c.Query("scale"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || v > maxPreviewScale {
			BadRequest(c, "scale must be in (0, 3]")
			return
		}
		scale = v
	}

	ctx := c.Request.Context()
	resolved := h.resolver.Resolve(ctx, eventID, kind)
	if len(req.Fields) > 0 {
		fields := toFields(req.Fields)
		if err := certificate.ValidateFields(fields); err != nil {
			respondError(c, err, "invalid fields")
			return
		}
		resolved.Fields = fields
	}
	if req.ImageURL != "" {
		if !validImageRef(eventID, req.ImageURL) {
			BadRequest(c, "invalid imageUrl")
			return
		}
		resolved.ImageRef = strings.TrimSpace(req.ImageURL)
	}

	raw, err := h.images.FetchBytes(ctx, resolved.ImageRef)
	if err != nil {
		// 预览只读背景图，上游不可用时按网关错误返回。
		respondErrorStatus(c, http.StatusBadGateway, errors.Join(certificate.ErrAssetUnavailable, err), "failed to load background")
		return
	}
	bg, err := editor.DecodeImage(raw)
	if err != nil {
		respondErrorStatus(c, http.StatusBadGateway, errors.Join(certificate.ErrAssetUnavailable, err), "failed to decode background")
		return
	}
	frame := editor.Frame{Background: bg, Fields: resolved.Fields, Scale: scale}
	if req.Sample == nil || *req.Sample {
		rc := certificate.SampleContext
		frame.Context = &rc
	}
	img, err := h.canvas.Render(frame)
	if err != nil {
		respondError(c, err, "failed to render preview")
		return
	}
	png, err := editor.EncodePNG(img)
	if err != nil {
		respondError(c, err, "failed to encode preview")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
