package attachment

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/interfaces"
	"github.com/customeros/mercure/internal/enum"
	mercure_errors "github.com/customeros/mercure/internal/errors"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/models"
	"github.com/customeros/mercure/internal/repository"
	"github.com/customeros/mercure/internal/routes"
	"github.com/customeros/mercure/internal/tracing"
)

const builderScript = "generator.sh"

type Service struct {
	appCfg       *config.AppConfig
	cfg          *config.AttachmentConfig
	log          logger.Logger
	repositories *repository.Repositories
	storage      interfaces.ObjectStorage
	trackers     interfaces.TrackerService
}

func NewService(appCfg *config.AppConfig, cfg *config.AttachmentConfig, log logger.Logger, repos *repository.Repositories, storage interfaces.ObjectStorage, trackers interfaces.TrackerService) *Service {
	return &Service{
		appCfg:       appCfg,
		cfg:          cfg,
		log:          log,
		repositories: repos,
		storage:      storage,
		trackers:     trackers,
	}
}

// Create stores the uploaded content and registers the attachment.
// Buildable uploads must be zip archives holding generator.sh.
func (s *Service) Create(ctx context.Context, attachment *models.Attachment, content []byte) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AttachmentService.Create")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if attachment.Name == "" || len(content) == 0 {
		return mercure_errors.ErrInvalidInput
	}
	if attachment.Buildable {
		if err := checkArchive(content); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
	}
	if err := attachment.BeforeCreate(nil); err != nil {
		return err
	}
	tracing.TagEntity(span, attachment.ID)
	attachment.StorageKey = "attachments/" + attachment.ID + "/" + filepath.Base(attachment.Name)

	if err := s.storage.Upload(ctx, attachment.StorageKey, content, attachment.MimeType()); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to store attachment")
	}
	if err := s.repositories.AttachmentRepository.Create(ctx, attachment); err != nil {
		tracing.TraceErr(span, err)
		if deleteErr := s.storage.Delete(ctx, attachment.StorageKey); deleteErr != nil {
			s.log.Warnf("orphan attachment object %s: %v", attachment.StorageKey, deleteErr)
		}
		return err
	}
	return nil
}

func checkArchive(content []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return errors.Wrap(mercure_errors.ErrInvalidInput, err.Error())
	}
	for _, f := range reader.File {
		if f.Name == builderScript {
			return nil
		}
	}
	return mercure_errors.ErrBuilderScriptMissing
}

// Build returns the bytes sent to target. Static attachments are served as
// stored; buildable ones run their generator.sh with the tracker url of this
// exact tracker in the environment.
func (s *Service) Build(ctx context.Context, attachment *models.Attachment, tracker *models.Tracker, target *models.Target) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AttachmentService.Build")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, attachment.ID)
	span.SetTag("buildable", attachment.Buildable)

	stored, err := s.storage.Download(ctx, attachment.StorageKey)
	if errors.Is(err, mercure_errors.ErrObjectNotFound) {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(mercure_errors.ErrAttachmentNotFound, "no content for %s", attachment.Name)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if !attachment.Buildable {
		return stored, nil
	}

	out, err := s.build(ctx, stored, tracker, target)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to build attachment %s", attachment.Name)
	}
	return out, nil
}

func (s *Service) build(ctx context.Context, archive []byte, tracker *models.Tracker, target *models.Target) ([]byte, error) {
	dir, err := os.MkdirTemp("", "mercure-build-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	if err = extract(archive, dir); err != nil {
		return nil, err
	}
	if _, err = os.Stat(filepath.Join(dir, builderScript)); err != nil {
		return nil, mercure_errors.ErrBuilderScriptMissing
	}

	buildCtx, cancel := context.WithTimeout(ctx, s.cfg.BuildTimeout)
	defer cancel()

	cmd := exec.CommandContext(buildCtx, s.cfg.Shell, builderScript)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"TRACKER_URL="+s.appCfg.PublicHost()+routes.TrackerImagePath(tracker.ID),
		"TARGET_EMAIL="+target.Email,
		"TARGET_FIRST_NAME="+target.FirstName,
		"TARGET_LAST_NAME="+target.LastName,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, errors.Wrap(err, msg)
		}
		return nil, err
	}

	encoded := strings.Join(strings.Fields(string(stdout)), "")
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "builder output is not base64")
	}
	return decoded, nil
}

func extract(archive []byte, dir string) error {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if errors.Is(err, zip.ErrInsecurePath) {
		return errors.Wrap(mercure_errors.ErrUnsafeArchivePath, err.Error())
	}
	if err != nil {
		return errors.Wrap(err, "invalid attachment archive")
	}

	root := filepath.Clean(dir) + string(os.PathSeparator)
	for _, f := range reader.File {
		path := filepath.Join(dir, f.Name)
		if !strings.HasPrefix(path, root) {
			return errors.Wrap(mercure_errors.ErrUnsafeArchivePath, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err = os.MkdirAll(path, 0o755); err != nil {
				return err
			}
			continue
		}
		if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err = writeFile(f, path); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(f *zip.File, path string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode()|0o600)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// Download serves an attachment linked from a landing page and records the
// hit on its tracker. Unknown ids are reported before any visit is stored.
func (s *Service) Download(ctx context.Context, attachmentID, trackerID string, visit dto.Visit) (*models.Attachment, []byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AttachmentService.Download")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, attachmentID)

	if _, err := s.repositories.TrackerRepository.GetByID(ctx, trackerID); err != nil {
		tracing.TraceErr(span, err)
		return nil, nil, err
	}
	attachment, err := s.repositories.AttachmentRepository.GetByID(ctx, attachmentID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, nil, err
	}

	tracker, _, err := s.trackers.RecordVisit(ctx, trackerID, visit, enum.TrackerValueDownloaded)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, nil, err
	}

	target := tracker.Target
	if target == nil {
		target = &models.Target{ID: tracker.TargetID, Email: tracker.TargetEmail}
	}
	content, err := s.Build(ctx, attachment, tracker, target)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, nil, err
	}
	return attachment, content, nil
}
