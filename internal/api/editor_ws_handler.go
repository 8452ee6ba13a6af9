package api

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"certEngine/internal/certificate"
	"certEngine/internal/editor"
)

const editorReadLimit = 1 << 20

// EditorHandler 为每个 WebSocket 连接打开一个 editor.Session，
// 按顺序执行客户端发来的操作并回传完整快照。
type EditorHandler struct {
	store    certificate.TemplateStore
	metrics  certificate.Metrics
	canvas   *editor.Canvas
	images   certificate.ImageFetcher
	page     certificate.PageSize
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewEditorHandler(
	store certificate.TemplateStore,
	metrics certificate.Metrics,
	canvas *editor.Canvas,
	images certificate.ImageFetcher,
	page certificate.PageSize,
	allowedOrigins []string,
	logger *slog.Logger,
) *EditorHandler {
	return &EditorHandler{
		store:    store,
		metrics:  metrics,
		canvas:   canvas,
		images:   images,
		page:     page,
		logger:   logger,
		upgrader: newUpgrader(allowedOrigins),
	}
}

// editorCommand 是客户端发来的一条操作。
type editorCommand struct {
	Op       string             `json:"op"`
	Kind     certificate.Kind   `json:"kind,omitempty"`
	FieldID  string             `json:"fieldId,omitempty"`
	Pointer  *editor.Pointer    `json:"pointer,omitempty"`
	Patch    *editor.FieldPatch `json:"patch,omitempty"`
	Image    string             `json:"image,omitempty"`
	Viewport *editor.Viewport   `json:"viewport,omitempty"`
	Scale    float64            `json:"scale,omitempty"`
}

type editorReply struct {
	Op       string          `json:"op"`
	OK       bool            `json:"ok"`
	Error    string          `json:"error,omitempty"`
	Result   any             `json:"result,omitempty"`
	Snapshot editor.Snapshot `json:"snapshot"`
}

var errUnknownOp = errors.New("unknown op")

// HandleConnection 打开编辑会话。
// GET /v1/events/:eventId/editor
func (h *EditorHandler) HandleConnection(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	session, err := editor.Open(ctx, eventID, h.store, h.metrics, editor.Options{Page: h.page}, h.logger)
	if err != nil {
		respondError(c, err, "failed to open editor")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(editorReadLimit)

	log := h.logger.With(slog.Uint64("event_id", uint64(eventID)), slog.String("client_ip", c.ClientIP()))
	log.Info("editor session opened")

	if err := conn.WriteJSON(editorReply{Op: "open", OK: true, Snapshot: session.Snapshot()}); err != nil {
		return
	}

	r := &editorRunner{session: session, handler: h, backgrounds: map[string]image.Image{}}
	for {
		var cmd editorCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("editor session read failed", slog.Any("error", err))
			}
			break
		}

		result, png, err := r.apply(ctx, cmd)
		reply := editorReply{Op: cmd.Op, OK: err == nil, Result: result, Snapshot: session.Snapshot()}
		if err != nil {
			reply.Error = err.Error()
		}
		if png != nil {
			if err := conn.WriteMessage(websocket.BinaryMessage, png); err != nil {
				break
			}
		}
		if err := conn.WriteJSON(reply); err != nil {
			break
		}
	}

	if snap := session.Snapshot(); snap.Dirty {
		log.Info("editor session closed with unsaved changes", slog.String("kind", string(snap.Kind)))
	} else {
		log.Info("editor session closed")
	}
}

// editorRunner 把命令映射到会话操作；背景图按引用缓存，仅用于 render。
type editorRunner struct {
	session     *editor.Session
	handler     *EditorHandler
	backgrounds map[string]image.Image
}

func (r *editorRunner) apply(ctx context.Context, cmd editorCommand) (any, []byte, error) {
	s := r.session
	switch cmd.Op {
	case "snapshot":
		return nil, nil, nil
	case "switchKind":
		return nil, nil, s.SwitchKind(cmd.Kind)
	case "select":
		return nil, nil, s.SelectField(cmd.FieldID)
	case "deselect":
		return nil, nil, s.Deselect()
	case "selectAt":
		if cmd.Pointer == nil {
			return nil, nil, errMissingPointer
		}
		id, err := s.SelectAt(*cmd.Pointer)
		return id, nil, err
	case "add":
		id, err := s.AddField()
		return id, nil, err
	case "delete":
		return nil, nil, s.DeleteField(cmd.FieldID)
	case "update":
		if cmd.Patch == nil {
			return nil, nil, fmt.Errorf("%w: patch is required", certificate.ErrInvalidInput)
		}
		changed, err := s.UpdateSelectedField(*cmd.Patch)
		return changed, nil, err
	case "dragStart":
		if cmd.Pointer == nil {
			return nil, nil, errMissingPointer
		}
		if cmd.FieldID != "" {
			return cmd.FieldID, nil, s.BeginDrag(cmd.FieldID, *cmd.Pointer)
		}
		id, err := s.BeginDragAt(*cmd.Pointer)
		return id, nil, err
	case "dragMove":
		if cmd.Pointer == nil {
			return nil, nil, errMissingPointer
		}
		return nil, nil, s.DragTo(*cmd.Pointer)
	case "dragEnd":
		return nil, nil, s.EndDrag()
	case "togglePreview":
		on, err := s.TogglePreview()
		return on, nil, err
	case "viewport":
		if cmd.Viewport == nil {
			return nil, nil, fmt.Errorf("%w: viewport is required", certificate.ErrInvalidInput)
		}
		s.SetViewport(*cmd.Viewport)
		return nil, nil, nil
	case "setImage":
		if !validImageRef(s.EventID(), cmd.Image) {
			return nil, nil, fmt.Errorf("%w: invalid image reference", certificate.ErrInvalidInput)
		}
		s.SetImage(cmd.Image)
		return nil, nil, nil
	case "reset":
		return nil, nil, s.ResetFields()
	case "save":
		kind := cmd.Kind
		if kind == "" {
			kind = s.Kind()
		}
		return nil, nil, s.Save(ctx, kind)
	case "saveAll":
		report := s.SaveAll(ctx)
		return report, nil, nil
	case "render":
		png, err := r.render(ctx, cmd.Scale)
		return nil, png, err
	default:
		return nil, nil, fmt.Errorf("%w %q", errUnknownOp, cmd.Op)
	}
}

var errMissingPointer = fmt.Errorf("%w: pointer is required", certificate.ErrInvalidInput)

func (r *editorRunner) render(ctx context.Context, scale float64) ([]byte, error) {
	if scale <= 0 || scale > maxPreviewScale {
		scale = defaultPreviewScale
	}
	ref := r.session.Draft(r.session.Kind()).Image
	if ref == "" {
		ref = certificate.DefaultBackgroundRef
	}
	bg, ok := r.backgrounds[ref]
	if !ok {
		raw, err := r.handler.images.FetchBytes(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", certificate.ErrAssetUnavailable, err)
		}
		bg, err = editor.DecodeImage(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", certificate.ErrAssetUnavailable, err)
		}
		r.backgrounds[ref] = bg
	}
	img, err := r.handler.canvas.Render(r.session.Frame(bg, scale))
	if err != nil {
		return nil, err
	}
	return editor.EncodePNG(img)
}
