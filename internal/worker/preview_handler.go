package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"certEngine/internal/certificate"
	"certEngine/internal/editor"
	"certEngine/internal/errcode"
	"certEngine/internal/storage"
	"certEngine/internal/tasks"
)

// previewScale renders thumbnails at half the page size.
const previewScale = 0.5

// TemplatePreviewHandler 负责模板缩略图生成任务。
type TemplatePreviewHandler struct {
	resolver *certificate.TemplateResolver
	canvas   *editor.Canvas
	images   certificate.ImageFetcher
	objects  ObjectUploader
	notifier Publisher
	logger   *slog.Logger
}

func NewTemplatePreviewHandler(
	resolver *certificate.TemplateResolver,
	canvas *editor.Canvas,
	images certificate.ImageFetcher,
	objects ObjectUploader,
	notifier Publisher,
	logger *slog.Logger,
) *TemplatePreviewHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplatePreviewHandler{
		resolver: resolver,
		canvas:   canvas,
		images:   images,
		objects:  objects,
		notifier: notifier,
		logger:   logger,
	}
}

func (h *TemplatePreviewHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.TemplatePreviewPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal template preview payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if !payload.Kind.Valid() {
		h.logger.Warn("unknown template type, skipping task", slog.String("kind", string(payload.Kind)))
		return nil
	}

	log := h.logger.With(
		slog.Uint64("event_id", uint64(payload.EventID)),
		slog.String("kind", string(payload.Kind)),
		slog.String("correlation_id", payload.CorrelationID),
	)
	log.Info("starting template preview generation")

	resolved := h.resolver.Resolve(ctx, payload.EventID, payload.Kind)
	png, err := h.canvas.Thumbnail(ctx, h.images, resolved, previewScale)
	if err != nil {
		log.Error("render template preview failed", slog.Any("error", err))
		return err
	}

	key := storage.ThumbnailKey(payload.EventID, payload.Kind)
	if _, err := h.objects.UploadFile(ctx, key, bytes.NewReader(png), int64(len(png)), "image/png"); err != nil {
		log.Error("upload template preview failed", slog.Any("error", err))
		return err
	}

	msg := CertificateNotifyMessage{
		Status:        StatusPreviewReady,
		EventID:       payload.EventID,
		Kind:          payload.Kind,
		CorrelationID: payload.CorrelationID,
		ObjectKey:     key,
		ErrorCode:     errcode.OK,
		Fallbacks:     fallbackTags(resolved),
	}
	if err := publishNotify(ctx, h.notifier, msg); err != nil {
		log.Warn("publish preview notification failed", slog.Any("error", err))
	}

	log.Info("template preview generation completed", slog.String("object_key", key))
	return nil
}
