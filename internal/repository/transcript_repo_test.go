package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/fyerfyer/meeting-QA-system/internal/database"
	"github.com/fyerfyer/meeting-QA-system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	// 使用唯一的内存数据库标识符
	dbName := fmt.Sprintf("file:memdb_%d?mode=memory", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err, "Failed to open in-memory database")

	err = db.AutoMigrate(
		&models.Transcript{},
		&models.TranscriptSegment{},
		&models.ChatSession{},
		&models.ChatMessage{},
	)
	require.NoError(t, err, "Failed to run migrations")

	originalDB := database.DB
	database.DB = db

	cleanup := func() {
		database.DB = originalDB
	}

	return db, cleanup
}

func newTestTranscript(id, meetingID string) *models.Transcript {
	return &models.Transcript{
		ID:          id,
		MeetingID:   meetingID,
		Session:     meetingID,
		MeetingType: meetingID[1:3],
		FileName:    meetingID + ".mrt",
		FilePath:    "/data/uploads/" + meetingID + ".mrt",
		FileSize:    2048,
		ContentHash: "hash-" + id,
		Status:      models.TranscriptStatusUploaded,
	}
}

func TestTranscriptRepository_CreateAndGet(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewTranscriptRepository()

	transcript := newTestTranscript("trans-1", "Bmr001")
	require.NoError(t, repo.Create(transcript))

	saved, err := repo.GetByID("trans-1")
	require.NoError(t, err)
	assert.Equal(t, "Bmr001", saved.MeetingID)
	assert.Equal(t, "mr", saved.MeetingType)
	assert.Equal(t, models.TranscriptStatusUploaded, saved.Status)
	assert.False(t, saved.UploadedAt.IsZero(), "BeforeCreate should set uploaded time")

	// 空ID不允许创建
	assert.Error(t, repo.Create(&models.Transcript{}))

	// 不存在的ID返回ErrTranscriptNotFound
	_, err = repo.GetByID("missing")
	assert.ErrorIs(t, err, models.ErrTranscriptNotFound)
}

func TestTranscriptRepository_GetByContentHash(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewTranscriptRepository()
	require.NoError(t, repo.Create(newTestTranscript("trans-2", "Bed004")))

	found, err := repo.GetByContentHash("hash-trans-2")
	require.NoError(t, err)
	assert.Equal(t, "trans-2", found.ID)

	_, err = repo.GetByContentHash("no-such-hash")
	assert.ErrorIs(t, err, models.ErrTranscriptNotFound)
}

func TestTranscriptRepository_ListFilters(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewTranscriptRepository()
	require.NoError(t, repo.Create(newTestTranscript("trans-3", "Bmr001")))
	require.NoError(t, repo.Create(newTestTranscript("trans-4", "Bmr002")))
	require.NoError(t, repo.Create(newTestTranscript("trans-5", "Bro003")))

	all, total, err := repo.List(0, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	mrOnly, total, err := repo.List(0, 10, map[string]interface{}{"meeting_type": "mr"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, mrOnly, 2)

	byMeeting, total, err := repo.List(0, 10, map[string]interface{}{"meeting_id": "Bro003"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "trans-5", byMeeting[0].ID)
}

func TestTranscriptRepository_StatusAndProgress(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewTranscriptRepository()
	require.NoError(t, repo.Create(newTestTranscript("trans-6", "Bmr005")))

	require.NoError(t, repo.UpdateStatus("trans-6", models.TranscriptStatusFailed, "parse error"))
	failed, err := repo.GetByID("trans-6")
	require.NoError(t, err)
	assert.Equal(t, models.TranscriptStatusFailed, failed.Status)
	assert.Equal(t, "parse error", failed.Error)
	assert.NotNil(t, failed.ProcessedAt, "failure should set processed time")

	// 进度被限制在0-100
	require.NoError(t, repo.UpdateProgress("trans-6", 150))
	clamped, err := repo.GetByID("trans-6")
	require.NoError(t, err)
	assert.Equal(t, 100, clamped.Progress)
}

func TestTranscriptRepository_Segments(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewTranscriptRepository()
	require.NoError(t, repo.Create(newTestTranscript("trans-7", "Bmr006")))

	segments := []*models.TranscriptSegment{
		{TranscriptID: "trans-7", SegmentID: "seg-1", Position: 0, Text: "[me011]: first chunk"},
		{TranscriptID: "trans-7", SegmentID: "seg-2", Position: 1, Text: "[fn002]: second chunk"},
	}
	require.NoError(t, repo.SaveSegments(segments))

	count, err := repo.CountSegments("trans-7")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := repo.GetSegments("trans-7")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "seg-1", got[0].SegmentID, "segments should be ordered by position")

	// 删除转写文件时级联删除分块
	require.NoError(t, repo.Delete("trans-7"))
	count, err = repo.CountSegments("trans-7")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
