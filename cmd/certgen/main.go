package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"certEngine/internal/assets"
	"certEngine/internal/batch"
	"certEngine/internal/certificate"
	"certEngine/internal/config"
	"certEngine/internal/database"
	"certEngine/internal/fonts"
	"certEngine/internal/pdf"
	"certEngine/internal/storage"
	"certEngine/internal/store"
)

func main() {
	var (
		refs            = flag.String("ref", "", "报名编号，多个用逗号分隔")
		eventID         = flag.Uint("event", 0, "活动 ID；未指定 --ref 时为该活动全部参会者生成")
		kindRaw         = flag.String("kind", "", "模板类型 participation|awardee|attendance（默认 participation）")
		outDir          = flag.String("out", ".", "PDF 输出目录")
		requireTemplate = flag.Bool("require-template", false, "活动未配置模板时报错而不是使用默认模板")
		labeled         = flag.Bool("labeled", false, "文件名包含模板类型")
	)
	flag.Parse()

	kind, err := certificate.ParseKind(*kindRaw)
	if err != nil {
		log.Fatalf("parse --kind: %v", err)
	}

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	records := store.NewGormStore(db)

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	family, err := fonts.Load(cfg.Certificate.FontRegular, cfg.Certificate.FontBold, logger)
	if err != nil {
		log.Fatalf("load fonts: %v", err)
	}
	images := assets.NewFetcher(storageClient, assets.Options{
		Timeout:  cfg.Certificate.FetchTimeout,
		MaxBytes: cfg.Certificate.MaxImageBytes,
	}, logger)

	compositor, err := certificate.NewCompositor(records, images, family, pdf.NewGenerator(family, nil), certificate.Options{
		Page:              cfg.Certificate.Page(),
		RequireTemplate:   *requireTemplate,
		DefaultBackground: cfg.Certificate.DefaultBackgroundRef(),
	}, logger)
	if err != nil {
		log.Fatalf("init compositor: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	targets, err := resolveRefs(ctx, records, *refs, *eventID)
	if err != nil {
		log.Fatalf("resolve attendees: %v", err)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	driver := batch.NewDriver(compositor, cfg.Certificate.BatchDelay, logger)
	report, err := driver.Run(ctx, targets, kind, fileSink(*outDir, *labeled, os.Stdout, os.Stderr))
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("generate: %v", err)
	}

	fmt.Fprintf(os.Stderr, "共 %d 份，成功 %d，失败 %d\n", len(targets), report.Succeeded, report.Failed)
	if report.Canceled || report.Failed > 0 {
		os.Exit(1)
	}
}

// fileSink writes each certificate into dir. Attendees sharing a display
// name get the reference id appended instead of overwriting each other.
func fileSink(dir string, labeled bool, stdout, stderr io.Writer) batch.Sink {
	names := certificate.NameSet{}
	return func(_ context.Context, item batch.Item) error {
		if !item.OK() {
			fmt.Fprintf(stderr, "%s\tFAILED\t%v\n", item.ReferenceID, item.Err)
			return nil
		}
		name := item.Certificate.FileName
		if labeled {
			name = item.Certificate.LabeledFileName()
		}
		path := filepath.Join(dir, names.Claim(name, item.ReferenceID))
		if err := os.WriteFile(path, item.Certificate.Bytes, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(stdout, "%s\t%s\n", item.ReferenceID, path)
		return nil
	}
}

type attendeeLister interface {
	ListAttendees(ctx context.Context, eventID uint) ([]certificate.Attendee, error)
}

// resolveRefs splits --ref, falling back to the whole roster of --event.
func resolveRefs(ctx context.Context, records attendeeLister, raw string, eventID uint) ([]string, error) {
	var out []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	if len(out) > 0 {
		return out, nil
	}
	if eventID == 0 {
		return nil, errors.New("missing required flag: --ref or --event")
	}
	attendees, err := records.ListAttendees(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(attendees) == 0 {
		return nil, fmt.Errorf("event %d has no attendees", eventID)
	}
	for _, a := range attendees {
		out = append(out, a.ReferenceID)
	}
	return out, nil
}
