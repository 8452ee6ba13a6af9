package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"

	"certEngine/internal/batch"
	"certEngine/internal/certificate"
	"certEngine/internal/errcode"
	"certEngine/internal/metrics"
	"certEngine/internal/storage"
	"certEngine/internal/tasks"
)

// ObjectUploader is the slice of *storage.Client the handlers write through.
type ObjectUploader interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
}

// AttendeeLister 在任务未指定参会者时提供整场活动的名单。
type AttendeeLister interface {
	ListAttendees(ctx context.Context, eventID uint) ([]certificate.Attendee, error)
}

// BatchTaskHandler 负责消费批量证书生成任务。
type BatchTaskHandler struct {
	driver    *batch.Driver
	attendees AttendeeLister
	objects   ObjectUploader
	notifier  Publisher
	logger    *slog.Logger
}

// NewBatchTaskHandler 创建任务处理器。
func NewBatchTaskHandler(
	driver *batch.Driver,
	attendees AttendeeLister,
	objects ObjectUploader,
	notifier Publisher,
	logger *slog.Logger,
) *BatchTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchTaskHandler{
		driver:    driver,
		attendees: attendees,
		objects:   objects,
		notifier:  notifier,
		logger:    logger,
	}
}

// ProcessTask 实现 asynq.Handler。
// 单个参会者失败只会发送一条 failed 通知，不会让任务重试；
// 上传或通知失败会中断任务并交由 asynq 重试。
func (h *BatchTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	var payload tasks.CertificateBatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if payload.Kind == "" {
		payload.Kind = certificate.DefaultKind
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("event_id", uint64(payload.EventID)),
		slog.String("kind", string(payload.Kind)),
	)

	base := CertificateNotifyMessage{
		EventID:       payload.EventID,
		Kind:          payload.Kind,
		CorrelationID: payload.CorrelationID,
	}

	defer func() {
		if retErr == nil || !isFinalAsynqAttempt(ctx) {
			return
		}
		msg := base
		msg.Status = StatusError
		msg.ErrorCode = errcode.SystemError
		msg.ErrorMessage = strings.TrimSpace(retErr.Error())
		if err := publishNotify(ctx, h.notifier, msg); err != nil {
			log.Error("publish batch error notification failed", slog.Any("error", err))
		}
	}()

	refs, err := h.references(ctx, payload)
	if err != nil {
		log.Error("list attendees failed", slog.Any("error", err))
		return err
	}
	log.Info("starting certificate batch", slog.Int("total", len(refs)))

	var succeeded, failed int
	worst := errcode.OK
	report, err := h.driver.Run(ctx, refs, payload.Kind, func(ctx context.Context, item batch.Item) error {
		var cert *certificate.Certificate
		if item.OK() {
			cert = item.Certificate
		}
		metrics.ObserveCertificate(payload.Kind, cert, item.Err, item.Elapsed)

		msg := base
		msg.ReferenceID = item.ReferenceID
		switch {
		case item.Err != nil:
			failed++
			msg.Status = StatusFailed
			msg.ErrorCode = errcode.FromError(item.Err)
			msg.ErrorMessage = item.Err.Error()
			worst = errcode.Worse(worst, msg.ErrorCode)
		case cert.Event.ID != payload.EventID:
			failed++
			msg.Status = StatusFailed
			msg.ErrorCode = errcode.InvalidInput
			msg.ErrorMessage = fmt.Sprintf("attendee %q belongs to event %d", item.ReferenceID, cert.Event.ID)
			worst = errcode.Worse(worst, msg.ErrorCode)
		default:
			key := storage.CertificateKey(payload.EventID, payload.Kind, item.ReferenceID, cert.FileName)
			if _, err := h.objects.UploadFile(ctx, key, bytes.NewReader(cert.Bytes), int64(len(cert.Bytes)), "application/pdf"); err != nil {
				return fmt.Errorf("upload certificate %q: %w", item.ReferenceID, err)
			}
			succeeded++
			msg.Status = StatusGenerated
			msg.ObjectKey = key
			msg.FileName = cert.FileName
			// 使用默认模板不算失败，只在 fallbacks 中标注。
			msg.Fallbacks = fallbackTags(cert.Template)
		}
		return publishNotify(ctx, h.notifier, msg)
	})
	if err != nil {
		log.Error("certificate batch stopped", slog.Any("error", err))
		return err
	}
	if report.Canceled {
		return ctx.Err()
	}

	summary := base
	summary.Status = StatusCompleted
	summary.Total = len(refs)
	summary.Succeeded = succeeded
	summary.Failed = failed
	if failed > 0 {
		summary.ErrorCode = worst
		summary.ErrorMessage = fmt.Sprintf("%d of %d certificates failed", failed, len(refs))
	}
	if err := publishNotify(ctx, h.notifier, summary); err != nil {
		log.Error("publish batch summary failed", slog.Any("error", err))
		return err
	}

	log.Info("certificate batch completed", slog.Int("succeeded", succeeded), slog.Int("failed", failed))
	return nil
}

func (h *BatchTaskHandler) references(ctx context.Context, payload tasks.CertificateBatchPayload) ([]string, error) {
	if len(payload.ReferenceIDs) > 0 {
		return payload.ReferenceIDs, nil
	}
	attendees, err := h.attendees.ListAttendees(ctx, payload.EventID)
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(attendees))
	for _, a := range attendees {
		refs = append(refs, a.ReferenceID)
	}
	return refs, nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
