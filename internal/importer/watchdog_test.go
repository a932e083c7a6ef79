package importer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kennangle/studio-insights-api/internal/models"
	"github.com/kennangle/studio-insights-api/internal/repository"
)

type stubStalledStore struct {
	mu      sync.Mutex
	stalled []models.ImportJob
	updates map[string]repository.UpdateImportJobParams
}

func (s *stubStalledStore) GetStalled(_ context.Context, _ time.Duration) ([]models.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stalled, nil
}

func (s *stubStalledStore) Update(_ context.Context, id string, params repository.UpdateImportJobParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updates == nil {
		s.updates = make(map[string]repository.UpdateImportJobParams)
	}
	s.updates[id] = params
	return nil
}

func TestWatchdogMarksStalledJobsFailed(t *testing.T) {
	stale := time.Now().UTC().Add(-15 * time.Minute)
	store := &stubStalledStore{
		stalled: []models.ImportJob{{
			ID:             "job-stalled",
			OrganizationID: "org-1",
			Status:         models.ImportStatusRunning,
			HeartbeatAt:    &stale,
		}},
	}
	wd := NewWatchdog(store, nil, 2*time.Minute, 10*time.Minute, zap.NewNop())

	wd.sweep(context.Background())

	params, ok := store.updates["job-stalled"]
	require.True(t, ok)
	require.NotNil(t, params.Status)
	require.Equal(t, models.ImportStatusFailed, *params.Status)
	require.NotNil(t, params.ErrorMessage)
	require.Contains(t, *params.ErrorMessage, "no heartbeat for over 10 minutes")
	require.Contains(t, *params.ErrorMessage, "resume the import")
}

func TestWatchdogLeavesHealthyJobsAlone(t *testing.T) {
	store := &stubStalledStore{}
	wd := NewWatchdog(store, nil, 2*time.Minute, 10*time.Minute, zap.NewNop())

	wd.sweep(context.Background())

	require.Empty(t, store.updates)
}
