// Package importer implements the checkpointed bulk-import pipeline that
// synchronizes clients, classes, visits, and sales from the booking
// platform into the local store.
package importer

import (
	"context"
	"time"

	"github.com/kennangle/studio-insights-api/internal/mindbody"
	"github.com/kennangle/studio-insights-api/internal/models"
	"github.com/kennangle/studio-insights-api/internal/repository"
)

// PageResult reports the outcome of importing exactly one page.
type PageResult struct {
	Imported   int
	Updated    int
	Skipped    int
	Total      int
	NextOffset int
	Completed  bool
}

type sourceClient interface {
	Get(ctx context.Context, endpoint string, params map[string]string, out interface{}) error
	FetchPage(ctx context.Context, endpoint, resultsKey string, params map[string]string, offset int) (*mindbody.Page, error)
	CallCount() int64
	ResetCallCount()
	PageSize() int
}

type jobStore interface {
	GetByID(ctx context.Context, id string) (*models.ImportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateImportJobParams) error
	ListInterrupted(ctx context.Context) ([]models.ImportJob, error)
	UpdateHeartbeat(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type studentStore interface {
	UpsertBySourceID(ctx context.Context, student *models.Student) (bool, error)
	SourceIDIndex(ctx context.Context, organizationID string) (map[string]string, error)
}

type classStore interface {
	UpsertDefinition(ctx context.Context, def *models.ClassDefinition) error
	CreateSchedule(ctx context.Context, schedule *models.ClassSchedule) error
	ScheduleTimeIndex(ctx context.Context, organizationID string) (map[int64]string, error)
}

type attendanceStore interface {
	CreateIfAbsent(ctx context.Context, rec *models.AttendanceRecord) (bool, error)
}

type revenueStore interface {
	Upsert(ctx context.Context, rec *models.RevenueRecord) (bool, error)
}

type skippedStore interface {
	Create(ctx context.Context, rec *models.SkippedRecord) error
}

type quotaStore interface {
	AddCalls(ctx context.Context, organizationID string, n int64) (int64, error)
}

// Metrics receives pipeline telemetry. Implemented by the metrics service;
// a nil Metrics disables instrumentation.
type Metrics interface {
	ObserveImportPage(dataType string, imported, updated, skipped int)
	ObserveJobTransition(status string)
	AddSourceAPICalls(n int64)
}

const (
	dateFormat     = "2006-01-02"
	dateTimeFormat = "2006-01-02T15:04:05"
)

func formatDate(t time.Time) string {
	return t.UTC().Format(dateFormat)
}

func formatDateTime(t time.Time) string {
	return t.UTC().Format(dateTimeFormat)
}

// endOfDay extends an inclusive end date to the last instant of that day so
// datetime-filtered endpoints cover the whole range.
func endOfDay(t time.Time) time.Time {
	d := t.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, time.UTC)
}
