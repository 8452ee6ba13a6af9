package api

import (
	"bytes"
	"fmt"
	"image/png"
	"net/http"
	"testing"

	"certEngine/internal/certificate"
	"certEngine/internal/tasks"
)

func validField(id string) map[string]any {
	return map[string]any{
		"id":         id,
		"label":      "Name",
		"value":      certificate.TokenAttendeeName,
		"x":          421,
		"y":          300,
		"fontSize":   30,
		"fontWeight": "bold",
		"color":      "1A2B3C",
		"align":      "center",
	}
}

func TestGetTemplateFallsBackToDefaults(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, fmt.Sprintf("/v1/events/%d/templates/awardee", env.event.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	var resp templateResponse
	decodeJSON(t, w, &resp)
	if resp.Template != nil {
		t.Fatalf("expected no stored template, got %+v", resp.Template)
	}
	if resp.Resolved.FieldsFallback != certificate.FallbackMissing || resp.Resolved.ImageURL != certificate.DefaultBackgroundRef {
		t.Fatalf("resolved = %+v", resp.Resolved)
	}
	if len(resp.Resolved.Fields) != 3 || resp.Resolved.Fields[1].Value != "Outstanding Achievement Award" {
		t.Fatalf("expected awardee defaults, got %+v", resp.Resolved.Fields)
	}
}

func TestPutTemplateValidation(t *testing.T) {
	env := newTestEnv(t)
	path := fmt.Sprintf("/v1/events/%d/templates/participation", env.event.ID)

	badColor := validField("name")
	badColor["color"] = "#12345"
	cases := []struct {
		name string
		body map[string]any
	}{
		{"bad color", map[string]any{"imageUrl": env.bgKey, "fields": []any{badColor}}},
		{"duplicate ids", map[string]any{"imageUrl": env.bgKey, "fields": []any{validField("a"), validField("a")}}},
		{"missing image", map[string]any{"fields": []any{validField("a")}}},
		{"foreign image", map[string]any{"imageUrl": "template-assets/999/x.png", "fields": []any{validField("a")}}},
		{"local file", map[string]any{"imageUrl": "bundled:/etc/passwd", "fields": []any{validField("a")}}},
	}
	for _, tc := range cases {
		w := env.do(t, http.MethodPut, path, tc.body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d body=%s", tc.name, w.Code, w.Body.String())
		}
	}
	if len(env.tasks.tasks) != 0 {
		t.Fatalf("rejected saves must not enqueue previews")
	}
}

func TestPutTemplateReplacesAndEnqueuesPreview(t *testing.T) {
	env := newTestEnv(t)
	path := fmt.Sprintf("/v1/events/%d/templates/participation", env.event.ID)

	w := env.do(t, http.MethodPut, path, map[string]any{"imageUrl": env.bgKey, "fields": []any{validField("a"), validField("b")}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodPut, path, map[string]any{"imageUrl": env.bgKey, "fields": []any{validField("c")}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, path, nil)
	var resp templateResponse
	decodeJSON(t, w, &resp)
	if resp.Template == nil || len(resp.Template.Fields) != 1 || resp.Template.Fields[0].ID != "c" {
		t.Fatalf("expected full replacement, got %+v", resp.Template)
	}
	if resp.Template.ImageURL != env.bgKey || resp.Resolved.FieldsFallback != certificate.FallbackNone {
		t.Fatalf("unexpected template %+v", resp)
	}

	if len(env.tasks.tasks) != 2 || env.tasks.tasks[0].Type() != tasks.TypeTemplatePreview {
		t.Fatalf("expected two preview tasks, got %d", len(env.tasks.tasks))
	}

	// 其他类型不受影响
	w = env.do(t, http.MethodGet, fmt.Sprintf("/v1/events/%d/templates/attendance", env.event.ID), nil)
	var other templateResponse
	decodeJSON(t, w, &other)
	if other.Template != nil {
		t.Fatalf("attendance template must stay unset")
	}
}

func TestUnknownKindAndEvent(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, fmt.Sprintf("/v1/events/%d/templates/diploma", env.event.ID), nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/v1/events/abc/templates/awardee", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad event id, got %d", w.Code)
	}
}

func TestListTemplates(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, fmt.Sprintf("/v1/events/%d/templates", env.event.ID), nil)
	var resp struct {
		Items []templateResponse `json:"items"`
	}
	decodeJSON(t, w, &resp)
	if len(resp.Items) != 3 || resp.Items[0].TemplateType != certificate.KindParticipation {
		t.Fatalf("items = %+v", resp.Items)
	}
}

func TestPreviewRendersDraft(t *testing.T) {
	env := newTestEnv(t)
	path := fmt.Sprintf("/v1/events/%d/templates/attendance/preview?scale=0.5", env.event.ID)

	w := env.do(t, http.MethodPost, path, map[string]any{"imageUrl": env.bgKey, "fields": []any{validField("a")}, "sample": false})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if cfg.Width != 421 {
		t.Fatalf("width = %d, want 421", cfg.Width)
	}

	// 无请求体时使用已保存或默认模板
	w = env.do(t, http.MethodPost, fmt.Sprintf("/v1/events/%d/templates/attendance/preview", env.event.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, path, map[string]any{"imageUrl": storageKeyMissing(env)})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for missing background got %d", w.Code)
	}
}

func storageKeyMissing(env *testEnv) string {
	return fmt.Sprintf("template-assets/%d/missing.png", env.event.ID)
}
