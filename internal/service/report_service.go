package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wildpark/pointwatch-api/internal/models"
	appErrors "github.com/wildpark/pointwatch-api/pkg/errors"
	"github.com/wildpark/pointwatch-api/pkg/export"
	"github.com/wildpark/pointwatch-api/pkg/jobs"
	"github.com/wildpark/pointwatch-api/pkg/storage"
)

const reportJobType = "term_activity_report"

type reportRecordLister interface {
	ListByAuthorWindow(ctx context.Context, authorID string, start, end time.Time) ([]models.SWTDRecord, error)
}

// ReportService renders per-term activity reports asynchronously. Job
// state lives in memory: reports are ephemeral artifacts and a restart
// simply requires re-requesting them.
type ReportService struct {
	swtds     reportRecordLister
	users     userReader
	terms     termReader
	summaries summaryProvider
	store     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	queue     *jobs.Queue
	logger    *zap.Logger

	mu      sync.RWMutex
	tracked map[string]*models.ReportJob
}

// NewReportService constructs ReportService with its own worker queue.
func NewReportService(swtds reportRecordLister, users userReader, terms termReader, summaries summaryProvider, store *storage.LocalStorage, signer *storage.SignedURLSigner, workers, retries int, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReportService{
		swtds:     swtds,
		users:     users,
		terms:     terms,
		summaries: summaries,
		store:     store,
		signer:    signer,
		logger:    logger,
		tracked:   make(map[string]*models.ReportJob),
	}
	s.queue = jobs.NewQueue(reportJobType, s.process, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: retries,
		Logger:     logger,
	})
	return s
}

// Start launches the report workers.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the report workers.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// Enqueue schedules a report for the target user and term. Users may
// request their own reports; managing others follows clearance rules.
func (s *ReportService) Enqueue(ctx context.Context, actor *models.User, userID, termID string, format models.ReportFormat) (*models.ReportJob, error) {
	if format != models.ReportFormatPDF && format != models.ReportFormatCSV {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}

	target, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if actor.ID != target.ID && !canManage(actor, target) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to request reports for this user")
	}

	if _, err := s.terms.FindByID(ctx, termID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	job := &models.ReportJob{
		ID:        uuid.NewString(),
		UserID:    target.ID,
		TermID:    termID,
		Format:    format,
		Status:    models.ReportStatusQueued,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.tracked[job.ID] = job
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: reportJobType, Payload: job.ID}); err != nil {
		s.mu.Lock()
		delete(s.tracked, job.ID)
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report")
	}

	return s.snapshot(job.ID), nil
}

// Status returns the current state of a report job.
func (s *ReportService) Status(actor *models.User, jobID string) (*models.ReportJob, error) {
	job := s.snapshot(jobID)
	if job == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
	}
	if actor.ID != job.UserID && !actor.AccessLevel.AtLeast(models.AccessHead) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this report")
	}
	return job, nil
}

// ResolveDownload validates a signed token and opens the rendered file.
func (s *ReportService) ResolveDownload(token string) (*os.File, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}

	s.mu.RLock()
	job, ok := s.tracked[jobID]
	s.mu.RUnlock()
	if !ok || job.Status != models.ReportStatusCompleted || job.FilePath != relPath {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report not available")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open report file")
	}
	return file, relPath, nil
}

func (s *ReportService) process(ctx context.Context, job jobs.Job) error {
	jobID, _ := job.Payload.(string)
	tracked := s.setStatus(jobID, models.ReportStatusRunning, "")
	if tracked == nil {
		return fmt.Errorf("unknown report job %s", jobID)
	}

	user, err := s.users.FindByID(ctx, tracked.UserID)
	if err != nil {
		return s.fail(jobID, fmt.Errorf("load user: %w", err))
	}
	term, err := s.terms.FindByID(ctx, tracked.TermID)
	if err != nil {
		return s.fail(jobID, fmt.Errorf("load term: %w", err))
	}

	records, err := s.swtds.ListByAuthorWindow(ctx, user.ID, term.StartDate, term.EndDate)
	if err != nil {
		return s.fail(jobID, fmt.Errorf("list records: %w", err))
	}
	summary, err := s.summaries.GetPointSummary(ctx, user, term)
	if err != nil {
		return s.fail(jobID, fmt.Errorf("compute summary: %w", err))
	}

	dataset := buildReportDataset(user, term, records, summary)

	var rendered []byte
	switch tracked.Format {
	case models.ReportFormatCSV:
		rendered, err = export.RenderCSV(dataset)
	default:
		rendered, err = export.RenderPDF(dataset)
	}
	if err != nil {
		return s.fail(jobID, fmt.Errorf("render report: %w", err))
	}

	relPath := fmt.Sprintf("%s/%s.%s", user.ID, jobID, tracked.Format)
	if _, err := s.store.Save(relPath, rendered); err != nil {
		return s.fail(jobID, fmt.Errorf("store report: %w", err))
	}

	token, _, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		return s.fail(jobID, fmt.Errorf("sign download url: %w", err))
	}

	now := time.Now().UTC()
	s.mu.Lock()
	tracked.Status = models.ReportStatusCompleted
	tracked.FilePath = relPath
	tracked.DownloadURL = "/reports/download?token=" + token
	tracked.CompletedAt = &now
	s.mu.Unlock()

	s.logger.Info("report rendered",
		zap.String("job_id", jobID),
		zap.String("user_id", user.ID),
		zap.String("term_id", term.ID),
		zap.String("format", string(tracked.Format)),
	)
	return nil
}

func (s *ReportService) fail(jobID string, err error) error {
	s.setStatus(jobID, models.ReportStatusFailed, err.Error())
	s.logger.Warn("report job failed", zap.String("job_id", jobID), zap.Error(err))
	return err
}

func (s *ReportService) setStatus(jobID string, status models.ReportStatus, message string) *models.ReportJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.tracked[jobID]
	if !ok {
		return nil
	}
	job.Status = status
	job.Error = message
	return job
}

func (s *ReportService) snapshot(jobID string) *models.ReportJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.tracked[jobID]
	if !ok {
		return nil
	}
	clone := *job
	return &clone
}

func buildReportDataset(user *models.User, term *models.Term, records []models.SWTDRecord, summary models.PointSummary) export.Dataset {
	headers := []string{"Title", "Category", "Role", "Venue", "Dates", "Points", "Status"}
	rows := make([]map[string]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, map[string]string{
			"Title":    r.Title,
			"Category": r.Category,
			"Role":     r.Role,
			"Venue":    r.Venue,
			"Dates":    fmt.Sprintf("%s to %s", r.StartDate.Format("2006-01-02"), r.EndDate.Format("2006-01-02")),
			"Points":   fmt.Sprintf("%.2f", r.Points),
			"Status":   string(r.ValidationStatus),
		})
	}
	return export.Dataset{
		Title:   fmt.Sprintf("SWTD Report: %s (%s)", user.FullName(), term.Name),
		Headers: headers,
		Rows:    rows,
		Summary: []string{
			fmt.Sprintf("Valid points: %.2f", summary.ValidPoints),
			fmt.Sprintf("Pending points: %.2f", summary.PendingPoints),
			fmt.Sprintf("Required points: %.2f", summary.RequiredPoints),
			fmt.Sprintf("Excess: %.2f / Lacking: %.2f", summary.ExcessPoints, summary.LackingPoints),
			fmt.Sprintf("Carry-over balance: %.2f", user.PointBalance),
		},
	}
}
