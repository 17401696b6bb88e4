package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"github.com/mattjoyce/herald/internal/audit/mocks"
)

func newTestSlogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), &buf
}

func TestPrunerRunsInitialPrune(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockStoreService(ctrl)
	logger, _ := newTestSlogger()

	pruned := make(chan struct{}, 1)
	mockStore.EXPECT().Prune(gomock.Any(), 24*time.Hour).DoAndReturn(
		func(context.Context, time.Duration) (int64, error) {
			pruned <- struct{}{}
			return 3, nil
		})

	p := NewPruner(mockStore, 24*time.Hour, time.Hour, logger)
	assert.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	select {
	case <-pruned:
	case <-time.After(2 * time.Second):
		t.Fatal("initial prune never ran")
	}
}

func TestPrunerLogsPruneFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockStoreService(ctrl)
	logger, logBuf := newTestSlogger()

	mockStore.EXPECT().Prune(gomock.Any(), gomock.Any()).Return(int64(0), errors.New("disk gone"))

	p := NewPruner(mockStore, 24*time.Hour, time.Hour, logger)
	p.prune(context.Background())

	assert.Contains(t, logBuf.String(), "failed to prune delivery log")
	assert.Contains(t, logBuf.String(), "disk gone")
}

func TestPrunerStopEndsLoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockStoreService(ctrl)
	logger, _ := newTestSlogger()

	mockStore.EXPECT().Prune(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()

	p := NewPruner(mockStore, 24*time.Hour, time.Hour, logger)
	assert.NoError(t, p.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
