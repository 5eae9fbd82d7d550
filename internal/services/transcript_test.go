package services

import (
	"context"
	"strings"
	"testing"

	"github.com/fyerfyer/meeting-QA-system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptService_Upload(t *testing.T) {
	service, _ := newTestTranscriptService(t)
	ctx := context.Background()

	record, err := service.Upload(ctx, strings.NewReader(sampleMRT), "Bmr001.mrt")
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "Bmr001", record.MeetingID)
	assert.Equal(t, "mr", record.MeetingType)
	assert.Equal(t, "Bmr001.mrt", record.FileName)
	assert.Equal(t, models.TranscriptStatusUploaded, record.Status)
	assert.NotEmpty(t, record.ContentHash)
	assert.Equal(t, int64(len(sampleMRT)), record.FileSize)
}

func TestTranscriptService_UploadRejectsUnsupportedType(t *testing.T) {
	service, _ := newTestTranscriptService(t)
	ctx := context.Background()

	_, err := service.Upload(ctx, strings.NewReader("hello"), "notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFileType)

	_, err = service.Upload(ctx, strings.NewReader("%PDF-1.4"), "report.pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
}

func TestTranscriptService_UploadRejectsOversizedFile(t *testing.T) {
	service, _ := newTestTranscriptService(t, WithMaxFileSize(64))
	ctx := context.Background()

	_, err := service.Upload(ctx, strings.NewReader(sampleMRT), "Bmr001.mrt")
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestTranscriptService_UploadDeduplicatesByContent(t *testing.T) {
	service, _ := newTestTranscriptService(t)
	ctx := context.Background()

	first, err := service.Upload(ctx, strings.NewReader(sampleMRT), "Bmr001.mrt")
	require.NoError(t, err)

	// 相同内容再次上传返回已有记录
	second, err := service.Upload(ctx, strings.NewReader(sampleMRT), "Bmr001-copy.mrt")
	assert.ErrorIs(t, err, models.ErrDuplicateTranscript)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
}

func TestTranscriptService_ProcessTranscript(t *testing.T) {
	service, vectorDB := newTestTranscriptService(t)
	ctx := context.Background()

	record, err := service.Upload(ctx, strings.NewReader(sampleMRT), "Bmr001.mrt")
	require.NoError(t, err)

	require.NoError(t, service.ProcessTranscript(ctx, record.ID))

	// 处理完成后状态、进度和分块计数都已更新
	processed, err := service.GetStatusManager().GetTranscript(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TranscriptStatusCompleted, processed.Status)
	assert.Equal(t, 100, processed.Progress)
	assert.Equal(t, models.StageCompleted, processed.CurrentStage)
	assert.Greater(t, processed.SegmentCount, 0)
	// 数字任务片段被排除
	assert.Equal(t, 2, processed.UtteranceCount)
	assert.Equal(t, 2, processed.SpeakerCount)
	assert.Equal(t, "Bmr001", processed.Session)
	assert.NotEmpty(t, processed.Metadata)

	// 分块已写入数据库和向量库
	segmentCount, err := service.CountSegments(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, processed.SegmentCount, segmentCount)

	vectorCount, err := vectorDB.Count()
	require.NoError(t, err)
	assert.Equal(t, segmentCount, vectorCount)
}

func TestTranscriptService_ProcessFailsOnInvalidFile(t *testing.T) {
	service, _ := newTestTranscriptService(t)
	ctx := context.Background()

	record, err := service.Upload(ctx, strings.NewReader("not an mrt file"), "Bad001.mrt")
	require.NoError(t, err)

	err = service.ProcessTranscript(ctx, record.ID)
	assert.Error(t, err)

	status, statusErr := service.GetTranscriptStatus(ctx, record.ID)
	require.NoError(t, statusErr)
	assert.Equal(t, models.TranscriptStatusFailed, status)

	failed, err := service.GetStatusManager().GetTranscript(ctx, record.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, failed.Error)
}

func TestTranscriptService_DeleteTranscript(t *testing.T) {
	service, vectorDB := newTestTranscriptService(t)
	ctx := context.Background()

	record, err := service.Upload(ctx, strings.NewReader(sampleMRT), "Bmr001.mrt")
	require.NoError(t, err)
	require.NoError(t, service.ProcessTranscript(ctx, record.ID))

	require.NoError(t, service.DeleteTranscript(ctx, record.ID))

	// 记录、分块和向量全部被清理
	_, err = service.GetTranscriptStatus(ctx, record.ID)
	assert.Error(t, err)

	segmentCount, err := service.CountSegments(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, segmentCount)

	vectorCount, err := vectorDB.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, vectorCount)
}

func TestTranscriptService_GetTranscriptInfo(t *testing.T) {
	service, _ := newTestTranscriptService(t)
	ctx := context.Background()

	record, err := service.Upload(ctx, strings.NewReader(sampleMRT), "Bmr001.mrt")
	require.NoError(t, err)
	require.NoError(t, service.ProcessTranscript(ctx, record.ID))

	info, err := service.GetTranscriptInfo(ctx, record.ID)
	require.NoError(t, err)

	assert.Equal(t, record.ID, info["transcript_id"])
	assert.Equal(t, "Bmr001", info["meeting_id"])
	assert.Equal(t, "mr", info["meeting_type"])
	assert.Equal(t, models.TranscriptStatusCompleted, info["status"])
	assert.Equal(t, 100, info["progress"])

	metadata, ok := info["metadata"].(map[string]interface{})
	require.True(t, ok, "metadata should be present after processing")
	assert.Equal(t, "Bmr001", metadata["meeting_id"])
	assert.Equal(t, "Meeting Recorder weekly meeting", metadata["meeting_type_description"])
}

func TestTranscriptService_ListTranscripts(t *testing.T) {
	service, _ := newTestTranscriptService(t)
	ctx := context.Background()

	_, err := service.Upload(ctx, strings.NewReader(sampleMRT), "Bmr001.mrt")
	require.NoError(t, err)
	_, err = service.Upload(ctx, strings.NewReader(strings.Replace(sampleMRT, "Bmr001", "Bed010", 1)), "Bed010.mrt")
	require.NoError(t, err)

	all, total, err := service.ListTranscripts(ctx, 0, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	// 按会议类型筛选
	edOnly, total, err := service.ListTranscripts(ctx, 0, 10, map[string]interface{}{"meeting_type": "ed"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, edOnly, 1)
	assert.Equal(t, "Bed010", edOnly[0].MeetingID)
}
