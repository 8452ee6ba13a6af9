package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"certEngine/internal/certificate"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeCertificateBatch = "certificate:batch"
	TypeTemplatePreview  = "certificate:template_preview"
)

// CertificateBatchPayload 描述一次批量生成：同一活动、同一模板类型下的一组参会者。
// ReferenceIDs 为空时由 worker 读取该活动的全部参会者。
type CertificateBatchPayload struct {
	EventID       uint             `json:"event_id"`
	Kind          certificate.Kind `json:"kind"`
	ReferenceIDs  []string         `json:"reference_ids,omitempty"`
	CorrelationID string           `json:"correlation_id"`
}

// TemplatePreviewPayload 请求为 (活动, 模板类型) 重新生成缩略图。
type TemplatePreviewPayload struct {
	EventID       uint             `json:"event_id"`
	Kind          certificate.Kind `json:"kind"`
	CorrelationID string           `json:"correlation_id"`
}

// NewCertificateBatchTask 构造一个批量证书生成任务。
func NewCertificateBatchTask(p CertificateBatchPayload) (*asynq.Task, error) {
	if p.EventID == 0 {
		return nil, fmt.Errorf("%w: event id is required", certificate.ErrInvalidInput)
	}
	if !p.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown template type %q", certificate.ErrInvalidInput, p.Kind)
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCertificateBatch, payload), nil
}

// NewTemplatePreviewTask 构造一个模板缩略图任务。
func NewTemplatePreviewTask(eventID uint, kind certificate.Kind, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(TemplatePreviewPayload{
		EventID:       eventID,
		Kind:          kind,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTemplatePreview, payload), nil
}
