package storage

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"certEngine/internal/certificate"
)

// 对象键布局：
//
//	template-assets/<eventId>/<uuid>.<ext>          上传的背景图
//	certificates/<eventId>/<kind>/<ref>/<file>.pdf  批量生成的证书
//	thumbnails/template/<eventId>/<kind>.png        模板缩略图
const (
	templateAssetRoot = "template-assets"
	certificateRoot   = "certificates"
	thumbnailRoot     = "thumbnails/template"
	maxObjectKeyLen   = 200
)

// TemplateAssetPrefix 是某活动背景图的目录前缀（以 / 结尾）。
func TemplateAssetPrefix(eventID uint) string {
	return fmt.Sprintf("%s/%d/", templateAssetRoot, eventID)
}

// CertificatePrefix 是某活动某类型证书的目录前缀；kind 为空时覆盖全部类型。
func CertificatePrefix(eventID uint, kind certificate.Kind) string {
	if kind == "" {
		return fmt.Sprintf("%s/%d/", certificateRoot, eventID)
	}
	return fmt.Sprintf("%s/%d/%s/", certificateRoot, eventID, kind)
}

// CertificateKey keeps the download file name as the last segment so listings
// can recover it without a database lookup.
func CertificateKey(eventID uint, kind certificate.Kind, referenceID, fileName string) string {
	return CertificatePrefix(eventID, kind) + path.Join(sanitizeSegment(referenceID), fileName)
}

// ThumbnailKey 返回模板缩略图的对象键。
func ThumbnailKey(eventID uint, kind certificate.Kind) string {
	return fmt.Sprintf("%s/%d/%s.png", thumbnailRoot, eventID, kind)
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// IsTemplateAssetKey reports whether key is an uploaded background of eventID.
// It is applied to image URLs sent by clients before they are stored.
func IsTemplateAssetKey(eventID uint, key string) bool {
	if !safeKeyUnder(key, TemplateAssetPrefix(eventID)) {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(key))
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// IsCertificateKey reports whether key is one generated certificate of
// eventID: certificates/<id>/<kind>/<ref>/<file>.pdf with a known kind.
func IsCertificateKey(eventID uint, key string) bool {
	root := CertificatePrefix(eventID, "")
	if !safeKeyUnder(key, root) || !strings.HasSuffix(key, ".pdf") {
		return false
	}
	parts := strings.Split(strings.TrimPrefix(key, root), "/")
	return len(parts) == 3 && certificate.Kind(parts[0]).Valid()
}

func safeKeyUnder(key, prefix string) bool {
	if key == "" || !utf8.ValidString(key) || len(key) > maxObjectKeyLen {
		return false
	}
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	return !strings.Contains(key, "..") && !strings.Contains(key, "\\") && !strings.Contains(key, "//")
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "_"
	}
	return s
}
