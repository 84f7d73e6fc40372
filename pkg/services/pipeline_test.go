package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ticketsync/ticketsync/pkg/apperrors"
	"github.com/ticketsync/ticketsync/pkg/metrics"
	"github.com/ticketsync/ticketsync/pkg/models"
)

type stageLog []string

type stubDiscovery struct {
	log    *stageLog
	result *DiscoveryResult
	err    error
}

func (s *stubDiscovery) Discover(context.Context) (*DiscoveryResult, error) {
	*s.log = append(*s.log, "discover")
	return s.result, s.err
}

type stubConverter struct {
	log    *stageLog
	result *ConvertResult
}

func (s *stubConverter) Convert(context.Context) (*ConvertResult, error) {
	*s.log = append(*s.log, "convert")
	return s.result, nil
}

type stubLoader struct {
	log    *stageLog
	result *LoadResult
	err    error
}

func (s *stubLoader) Candidates(context.Context) ([]TicketFile, error) {
	return nil, nil
}

func (s *stubLoader) Load(context.Context) (*LoadResult, error) {
	*s.log = append(*s.log, "load")
	return s.result, s.err
}

func TestPipeline_RunsStagesInOrder(t *testing.T) {
	var log stageLog
	recorder := metrics.NewRecorder()
	p := NewPipeline(
		&stubDiscovery{log: &log, result: &DiscoveryResult{Seen: []int64{101, 102}, New: []int64{102}, Cycles: 2}},
		&stubConverter{log: &log, result: &ConvertResult{Converted: []int64{102}}},
		&stubLoader{log: &log, result: &LoadResult{
			Loaded: []int64{102},
			Lines:  4,
			Errors: []*models.LineError{{TicketID: 102, Line: 3, Err: apperrors.ErrConstraintViolation}},
		}},
		recorder,
		zap.NewNop(),
	)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, stageLog{"discover", "convert", "load"}, log)
	assert.NotEqual(t, uuid.Nil, report.RunID)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
	assert.Equal(t, []int64{102}, report.Discovery.New)
	assert.Equal(t, 4, report.Load.Lines)

	assert.Equal(t, 2.0, testutil.ToFloat64(recorder.TicketsSeen))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.TicketsDownloaded))
	assert.Equal(t, 2.0, testutil.ToFloat64(recorder.ScrollCycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.TicketsConverted))
	assert.Equal(t, 4.0, testutil.ToFloat64(recorder.LinesLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.LineErrors))
	assert.Positive(t, testutil.ToFloat64(recorder.LastSuccess))
}

func TestPipeline_DiscoveryFailureAborts(t *testing.T) {
	var log stageLog
	recorder := metrics.NewRecorder()
	p := NewPipeline(
		&stubDiscovery{log: &log, result: &DiscoveryResult{New: []int64{101}}, err: apperrors.ErrTimeout},
		&stubConverter{log: &log, result: &ConvertResult{}},
		&stubLoader{log: &log, result: &LoadResult{}},
		recorder,
		zap.NewNop(),
	)

	report, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, stageLog{"discover"}, log)
	assert.Nil(t, report.Load)
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.TicketsDownloaded))
	assert.Zero(t, testutil.ToFloat64(recorder.LastSuccess))
}

func TestPipeline_SkipsNilStages(t *testing.T) {
	var log stageLog
	p := NewPipeline(nil, nil, &stubLoader{log: &log, result: &LoadResult{}}, nil, zap.NewNop())

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stageLog{"load"}, log)
	assert.Nil(t, report.Discovery)
	assert.NotNil(t, p.Recorder())
}

func TestPipeline_LoadFailurePropagates(t *testing.T) {
	var log stageLog
	loadErr := errors.New("tickets dir unreadable")
	p := NewPipeline(nil, nil, &stubLoader{log: &log, err: loadErr}, nil, zap.NewNop())

	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, loadErr)
}

func TestPipeline_SuccessWritesMetricsTextfile(t *testing.T) {
	var log stageLog
	path := filepath.Join(t.TempDir(), "ticketsync.prom")
	p := NewPipeline(nil, nil, &stubLoader{log: &log, result: &LoadResult{Loaded: []int64{7}, Lines: 3}}, nil, zap.NewNop()).
		WithMetricsTextfile(path)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ticketsync_last_success_timestamp_seconds")
	assert.Contains(t, string(data), "ticketsync_product_lines_loaded_total 3")
}

func TestPipeline_FailureKeepsPreviousMetricsTextfile(t *testing.T) {
	var log stageLog
	path := filepath.Join(t.TempDir(), "ticketsync.prom")
	previous := "ticketsync_last_success_timestamp_seconds 1.7607824e+09\n"
	require.NoError(t, os.WriteFile(path, []byte(previous), 0o644))

	p := NewPipeline(
		&stubDiscovery{log: &log, err: apperrors.ErrUnexpectedPage},
		nil,
		&stubLoader{log: &log, result: &LoadResult{}},
		nil,
		zap.NewNop(),
	).WithMetricsTextfile(path)

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, apperrors.ErrUnexpectedPage)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, previous, string(data))
}
