package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nimbus-edu/timetable-api/internal/models"
	appErrors "github.com/nimbus-edu/timetable-api/pkg/errors"
	"github.com/nimbus-edu/timetable-api/pkg/export"
	"github.com/nimbus-edu/timetable-api/pkg/storage"
)

var dayNames = map[int]string{
	1: "Monday",
	2: "Tuesday",
	3: "Wednesday",
	4: "Thursday",
	5: "Friday",
	6: "Saturday",
	7: "Sunday",
}

type classTimetableReader interface {
	ClassTimetable(ctx context.Context, schoolID, classID string, status models.EntryStatus) ([]models.TimetableEntryDetail, error)
}

type classNameReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// ExportResult carries rendered bytes plus transport metadata. When the
// export was persisted, DownloadToken holds a signed token for fetching it
// again without credentials until ExpiresAt.
type ExportResult struct {
	Content       []byte
	ContentType   string
	Filename      string
	DownloadToken string
	ExpiresAt     time.Time
}

// ExportService renders class timetables as CSV or PDF downloads. It reads
// through TimetableService so exports see the same scoping and caching as
// API reads. Rendered files are kept on disk and re-served through signed
// tokens; persistence failures degrade to a plain streamed response.
type ExportService struct {
	timetables classTimetableReader
	classes    classNameReader
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	store      *storage.LocalStorage
	signer     *storage.SignedURLSigner
	logger     *zap.Logger
}

// NewExportService creates a service instance. Store and signer may be nil,
// which disables persisted downloads.
func NewExportService(timetables classTimetableReader, classes classNameReader, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		timetables: timetables,
		classes:    classes,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		store:      store,
		signer:     signer,
		logger:     logger,
	}
}

// ExportClassTimetable renders the class's published timetable in the
// requested format, "csv" or "pdf".
func (s *ExportService) ExportClassTimetable(ctx context.Context, schoolID, classID, format string) (*ExportResult, error) {
	details, err := s.timetables.ClassTimetable(ctx, schoolID, classID, models.EntryStatusActive)
	if err != nil {
		return nil, err
	}

	className := classID
	if class, err := s.classes.FindByID(ctx, classID); err == nil {
		className = class.Name
	}

	dataset := buildTimetableDataset(details)

	result := &ExportResult{}
	switch format {
	case "csv":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		result.Content = content
		result.ContentType = "text/csv"
		result.Filename = fmt.Sprintf("timetable-%s.csv", classID)
	case "pdf":
		content, err := s.pdf.Render(dataset, fmt.Sprintf("Timetable %s", className))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		result.Content = content
		result.ContentType = "application/pdf"
		result.Filename = fmt.Sprintf("timetable-%s.pdf", classID)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	s.persist(schoolID, classID, result)
	return result, nil
}

// persist stores the rendered file and attaches a signed download token.
// Failures are logged only; the caller still gets the streamed bytes.
func (s *ExportService) persist(schoolID, classID string, result *ExportResult) {
	if s.store == nil || s.signer == nil {
		return
	}
	relPath := path.Join(schoolID, classID, result.Filename)
	if _, err := s.store.Save(relPath, result.Content); err != nil {
		s.logger.Warn("failed to persist export",
			zap.String("school_id", schoolID),
			zap.String("class_id", classID),
			zap.Error(err))
		return
	}
	token, expiresAt, err := s.signer.Generate(uuid.NewString(), relPath)
	if err != nil {
		s.logger.Warn("failed to sign export token",
			zap.String("school_id", schoolID),
			zap.String("class_id", classID),
			zap.Error(err))
		return
	}
	result.DownloadToken = token
	result.ExpiresAt = expiresAt
}

// OpenExport resolves a signed download token back to the stored file. An
// invalid or expired token is indistinguishable from a missing one.
func (s *ExportService) OpenExport(token string) (*ExportResult, error) {
	if s.store == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export downloads are disabled")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found or link expired")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found or link expired")
	}
	defer file.Close() //nolint:errcheck
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read stored export")
	}
	return &ExportResult{
		Content:     content,
		ContentType: contentTypeFor(relPath),
		Filename:    path.Base(relPath),
	}, nil
}

// CleanupExpired removes stored exports older than the signing TTL.
func (s *ExportService) CleanupExpired(ttl time.Duration) {
	if s.store == nil {
		return
	}
	deleted, err := s.store.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("failed to clean up expired exports", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("removed expired exports", zap.Int("count", len(deleted)))
	}
}

func contentTypeFor(relPath string) string {
	if strings.HasSuffix(relPath, ".pdf") {
		return "application/pdf"
	}
	return "text/csv"
}

func buildTimetableDataset(details []models.TimetableEntryDetail) export.Dataset {
	rows := make([]map[string]string, 0, len(details))
	for _, d := range details {
		teacher := ""
		if d.TeacherName != nil {
			teacher = *d.TeacherName
		}
		rows = append(rows, map[string]string{
			"Day":     dayNames[d.DayOfWeek],
			"Slot":    d.SlotName,
			"Start":   d.StartTime,
			"End":     d.EndTime,
			"Subject": d.SubjectName,
			"Teacher": teacher,
		})
	}
	return export.Dataset{
		Headers: []string{"Day", "Slot", "Start", "End", "Subject", "Teacher"},
		Rows:    rows,
	}
}
