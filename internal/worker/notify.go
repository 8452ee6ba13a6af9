package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"certEngine/internal/certificate"
)

// 通知状态。
const (
	StatusGenerated    = "generated"
	StatusFailed       = "failed"
	StatusCompleted    = "completed"
	StatusError        = "error"
	StatusPreviewReady = "preview_ready"
)

// CertificateNotifyMessage 是经 Redis Pub/Sub 转发给编辑器前端的统一消息。
// 注意：这里的字段名与前端解析保持一致。
type CertificateNotifyMessage struct {
	Status        string           `json:"status"`
	EventID       uint             `json:"event_id"`
	Kind          certificate.Kind `json:"kind"`
	CorrelationID string           `json:"correlation_id"`
	ReferenceID   string           `json:"reference_id,omitempty"`
	ObjectKey     string           `json:"object_key,omitempty"`
	FileName      string           `json:"file_name,omitempty"`
	ErrorCode     int              `json:"error_code"`
	ErrorMessage  string           `json:"error_message"`
	// Fallbacks lists the template parts that used built-in defaults, e.g. "fields:missing".
	Fallbacks []string `json:"fallbacks,omitempty"`
	Total     int      `json:"total,omitempty"`
	Succeeded int      `json:"succeeded,omitempty"`
	Failed    int      `json:"failed,omitempty"`
}

// Publisher is the slice of *redis.Client used for notifications.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// EventChannel 返回某活动的通知频道名。
func EventChannel(eventID uint) string {
	return fmt.Sprintf("event_notify:%d", eventID)
}

func publishNotify(ctx context.Context, pub Publisher, msg CertificateNotifyMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := EventChannel(msg.EventID)
	if err := pub.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func fallbackTags(t certificate.ResolvedTemplate) []string {
	var tags []string
	if t.FieldsFallback != certificate.FallbackNone {
		tags = append(tags, "fields:"+string(t.FieldsFallback))
	}
	if t.ImageFallback != certificate.FallbackNone {
		tags = append(tags, "image:"+string(t.ImageFallback))
	}
	return tags
}
