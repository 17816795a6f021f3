package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Dan9191/advance-service/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRunner struct{ mock.Mock }

func (m *MockRunner) RunOnce(ctx context.Context) (service.DeductionReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(service.DeductionReport), args.Error(1)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestNew_RejectsInvalidSpec(t *testing.T) {
	_, err := New("every morning", time.UTC, new(MockRunner), quietLogger())
	assert.ErrorContains(t, err, "invalid deduction schedule")
}

func TestRun_CallsRunnerWithDeadline(t *testing.T) {
	runner := new(MockRunner)
	runner.On("RunOnce", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})).Return(service.DeductionReport{Due: 2, Applied: 2}, nil).Once()

	s, err := New("0 6 * * *", time.UTC, runner, quietLogger())
	require.NoError(t, err)

	s.run()
	runner.AssertExpectations(t)
}

func TestRun_LogsFailure(t *testing.T) {
	runner := new(MockRunner)
	runner.On("RunOnce", mock.Anything).Return(service.DeductionReport{}, errors.New("db down")).Once()

	s, err := New("@daily", time.UTC, runner, quietLogger())
	require.NoError(t, err)

	assert.NotPanics(t, s.run)
	runner.AssertExpectations(t)
}

func TestSchedule_UsesLocation(t *testing.T) {
	nairobi := time.FixedZone("EAT", 3*60*60)
	s, err := New("0 6 * * *", nairobi, new(MockRunner), quietLogger())
	require.NoError(t, err)

	assert.Equal(t, nairobi, s.cron.Location())
	entries := s.cron.Entries()
	require.Len(t, entries, 1)
	// 02:00 UTC is 05:00 in Nairobi, so the next run is 06:00 local the same day
	from := time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC).In(s.cron.Location())
	next := entries[0].Schedule.Next(from)
	assert.Equal(t, time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC), next.UTC())
}

func TestStop_CancelsRunningBatch(t *testing.T) {
	runner := new(MockRunner)
	s, err := New("@every 1h", time.UTC, runner, quietLogger())
	require.NoError(t, err)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	assert.Error(t, s.ctx.Err())
	runner.AssertNotCalled(t, "RunOnce", mock.Anything)
}
