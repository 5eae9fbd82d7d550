package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fyerfyer/meeting-QA-system/internal/models"
	"github.com/fyerfyer/meeting-QA-system/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStatusManager 组装依赖内存数据库的状态管理器
func newTestStatusManager(t *testing.T) *TranscriptStatusManager {
	setupServiceDB(t)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	return NewTranscriptStatusManager(repository.NewTranscriptRepository(), logger)
}

// newUploadedTranscript 创建并保存一个已上传的转写记录
func newUploadedTranscript(t *testing.T, manager *TranscriptStatusManager) *models.Transcript {
	transcript := &models.Transcript{
		ID:          uuid.New().String(),
		MeetingID:   "Bmr001",
		MeetingType: "mr",
		FileName:    "Bmr001.mrt",
		FileSize:    1024,
		ContentHash: fmt.Sprintf("hash-%d", time.Now().UnixNano()),
	}
	require.NoError(t, manager.MarkAsUploaded(context.Background(), transcript))
	return transcript
}

func TestStatusManager_MarkAsUploaded(t *testing.T) {
	manager := newTestStatusManager(t)

	transcript := newUploadedTranscript(t, manager)
	assert.Equal(t, models.TranscriptStatusUploaded, transcript.Status)
	assert.Equal(t, 0, transcript.Progress)
	assert.False(t, transcript.UploadedAt.IsZero())

	stored, err := manager.GetTranscript(context.Background(), transcript.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TranscriptStatusUploaded, stored.Status)
}

func TestStatusManager_ProcessingLifecycle(t *testing.T) {
	manager := newTestStatusManager(t)
	ctx := context.Background()

	transcript := newUploadedTranscript(t, manager)

	require.NoError(t, manager.MarkAsProcessing(ctx, transcript.ID))
	status, err := manager.GetStatus(ctx, transcript.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TranscriptStatusProcessing, status)

	require.NoError(t, manager.UpdateProgress(ctx, transcript.ID, 50))
	require.NoError(t, manager.UpdateStage(ctx, transcript.ID, models.StageVectorizing))

	require.NoError(t, manager.MarkAsCompleted(ctx, transcript.ID, 12))

	completed, err := manager.GetTranscript(ctx, transcript.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TranscriptStatusCompleted, completed.Status)
	assert.Equal(t, 100, completed.Progress)
	assert.Equal(t, 12, completed.SegmentCount)
	assert.Equal(t, models.StageCompleted, completed.CurrentStage)
}

func TestStatusManager_MarkAsFailed(t *testing.T) {
	manager := newTestStatusManager(t)
	ctx := context.Background()

	transcript := newUploadedTranscript(t, manager)
	require.NoError(t, manager.MarkAsProcessing(ctx, transcript.ID))
	require.NoError(t, manager.MarkAsFailed(ctx, transcript.ID, "parse error: unexpected EOF"))

	failed, err := manager.GetTranscript(ctx, transcript.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TranscriptStatusFailed, failed.Status)
	assert.Equal(t, "parse error: unexpected EOF", failed.Error)
}

func TestStatusManager_FailedTranscriptCanRetry(t *testing.T) {
	manager := newTestStatusManager(t)
	ctx := context.Background()

	transcript := newUploadedTranscript(t, manager)
	require.NoError(t, manager.MarkAsProcessing(ctx, transcript.ID))
	require.NoError(t, manager.MarkAsFailed(ctx, transcript.ID, "embedding service unavailable"))

	// 失败的转写允许重新进入处理中
	require.NoError(t, manager.MarkAsProcessing(ctx, transcript.ID))
	status, err := manager.GetStatus(ctx, transcript.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TranscriptStatusProcessing, status)
}

func TestStatusManager_RejectsInvalidTransitions(t *testing.T) {
	manager := newTestStatusManager(t)
	ctx := context.Background()

	transcript := newUploadedTranscript(t, manager)
	require.NoError(t, manager.MarkAsProcessing(ctx, transcript.ID))
	require.NoError(t, manager.MarkAsCompleted(ctx, transcript.ID, 5))

	// 已完成的转写不能再次进入处理中或完成
	assert.Error(t, manager.MarkAsProcessing(ctx, transcript.ID))
	assert.Error(t, manager.MarkAsCompleted(ctx, transcript.ID, 5))
}

func TestStatusManager_UpdateProgressRequiresProcessing(t *testing.T) {
	manager := newTestStatusManager(t)
	ctx := context.Background()

	transcript := newUploadedTranscript(t, manager)

	// 未进入处理中时不允许更新进度
	assert.Error(t, manager.UpdateProgress(ctx, transcript.ID, 30))

	require.NoError(t, manager.MarkAsProcessing(ctx, transcript.ID))
	require.NoError(t, manager.UpdateProgress(ctx, transcript.ID, 30))
}

func TestStatusManager_DeleteTranscript(t *testing.T) {
	manager := newTestStatusManager(t)
	ctx := context.Background()

	transcript := newUploadedTranscript(t, manager)
	require.NoError(t, manager.DeleteTranscript(ctx, transcript.ID))

	_, err := manager.GetStatus(ctx, transcript.ID)
	assert.Error(t, err)
}

func TestStatusManager_ValidateStateTransition(t *testing.T) {
	manager := newTestStatusManager(t)

	tests := []struct {
		name    string
		from    models.TranscriptStatus
		to      models.TranscriptStatus
		wantErr bool
	}{
		{"uploaded to processing", models.TranscriptStatusUploaded, models.TranscriptStatusProcessing, false},
		{"uploaded to completed", models.TranscriptStatusUploaded, models.TranscriptStatusCompleted, false},
		{"uploaded to failed", models.TranscriptStatusUploaded, models.TranscriptStatusFailed, false},
		{"processing to completed", models.TranscriptStatusProcessing, models.TranscriptStatusCompleted, false},
		{"processing to failed", models.TranscriptStatusProcessing, models.TranscriptStatusFailed, false},
		{"failed to processing", models.TranscriptStatusFailed, models.TranscriptStatusProcessing, false},
		{"completed is terminal", models.TranscriptStatusCompleted, models.TranscriptStatusProcessing, true},
		{"processing to uploaded", models.TranscriptStatusProcessing, models.TranscriptStatusUploaded, true},
		{"failed to completed", models.TranscriptStatusFailed, models.TranscriptStatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := manager.ValidateStateTransition(tt.from, tt.to)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
