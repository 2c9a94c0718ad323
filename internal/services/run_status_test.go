package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/fyerfyer/persona-doc-analyzer/internal/database"
	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
	"github.com/fyerfyer/persona-doc-analyzer/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB 创建内存测试数据库
func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	dbName := fmt.Sprintf("file:services_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err, "Failed to connect to test database")
	require.NoError(t, database.AutoMigrate(db), "Failed to run migrations")

	originalDB := database.DB
	database.DB = db

	return db, func() {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			sqlDB.Close()
		}
		database.DB = originalDB
	}
}

func newStatusManager(t *testing.T) (*RunStatusManager, func()) {
	db, cleanup := setupTestDB(t)
	return NewRunStatusManager(repository.NewRunRepositoryWithDB(db), logrus.New()), cleanup
}

// TestRunStatusManager_BasicFlow 测试运行状态管理基本流程
func TestRunStatusManager_BasicFlow(t *testing.T) {
	manager, cleanup := newStatusManager(t)
	defer cleanup()
	ctx := context.Background()

	err := manager.MarkAsRunning(ctx, "run-1", "Food Contractor", "Prepare a vegetarian dinner",
		[]string{"/input/Dinner Ideas - Mains.pdf", "/input/Breakfast Ideas.pdf"})
	require.NoError(t, err)

	run, err := manager.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.Nil(t, run.CompletedAt)

	var docs []string
	require.NoError(t, json.Unmarshal(run.Documents, &docs))
	assert.Equal(t, []string{"Dinner Ideas - Mains.pdf", "Breakfast Ideas.pdf"}, docs)

	output := &models.Output{
		ExtractedSections: []models.ExtractedSection{
			{Document: "Dinner Ideas - Mains.pdf", SectionTitle: "Ratatouille", PageNumber: 1, ImportanceRank: 1},
		},
		SubsectionAnalysis: []models.SubsectionAnalysis{
			{Document: "Dinner Ideas - Mains.pdf", RefinedText: "A vegetarian dinner classic.", PageNumber: 1},
			{Document: "Dinner Ideas - Mains.pdf", RefinedText: "Serve warm.", PageNumber: 1},
		},
	}
	require.NoError(t, manager.MarkAsCompleted(ctx, "run-1", "culinary", "/output/output.json", output))

	run, err = manager.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, "culinary", run.Domain)
	assert.Equal(t, "/output/output.json", run.OutputPath)
	assert.Equal(t, 1, run.SectionCount)
	assert.Equal(t, 2, run.SubsectionCount)
	assert.NotNil(t, run.CompletedAt)

	var stored models.Output
	require.NoError(t, json.Unmarshal(run.Output, &stored))
	assert.Equal(t, "Ratatouille", stored.ExtractedSections[0].SectionTitle)
}

// TestRunStatusManager_TerminalStates 终态不可再转换
func TestRunStatusManager_TerminalStates(t *testing.T) {
	manager, cleanup := newStatusManager(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, manager.MarkAsRunning(ctx, "run-empty", "Analyst", "Review filings", nil))
	require.NoError(t, manager.MarkAsEmpty(ctx, "run-empty", "financial", models.ErrNoRelevantSections.Error()))

	run, err := manager.GetRun(ctx, "run-empty")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusEmpty, run.Status)
	assert.Equal(t, models.ErrNoRelevantSections.Error(), run.Error)

	err = manager.MarkAsFailed(ctx, "run-empty", "late failure")
	assert.ErrorIs(t, err, models.ErrInvalidRunStatus)

	require.NoError(t, manager.MarkAsRunning(ctx, "run-failed", "Analyst", "Review filings", nil))
	require.NoError(t, manager.MarkAsFailed(ctx, "run-failed", "embedding service unavailable"))
	err = manager.MarkAsCompleted(ctx, "run-failed", "financial", "out.json", &models.Output{})
	assert.ErrorIs(t, err, models.ErrInvalidRunStatus)
}

// TestRunStatusManager_UnknownRun 未知运行
func TestRunStatusManager_UnknownRun(t *testing.T) {
	manager, cleanup := newStatusManager(t)
	defer cleanup()

	err := manager.MarkAsFailed(context.Background(), "missing", "boom")
	assert.ErrorIs(t, err, models.ErrRunNotFound)
}

// TestRunStatusManager_ListRuns 测试分页与状态过滤
func TestRunStatusManager_ListRuns(t *testing.T) {
	manager, cleanup := newStatusManager(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, manager.MarkAsRunning(ctx, fmt.Sprintf("run-%d", i), "Researcher", "Study", nil))
	}
	require.NoError(t, manager.MarkAsFailed(ctx, "run-0", "boom"))

	runs, total, err := manager.ListRuns(ctx, 0, 10, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, runs, 3)

	runs, total, err = manager.ListRuns(ctx, 0, 10, models.RunStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-0", runs[0].ID)
}

// TestValidateStateTransition 测试状态转换规则
func TestValidateStateTransition(t *testing.T) {
	tests := []struct {
		from, to models.RunStatus
		valid    bool
	}{
		{models.RunStatusRunning, models.RunStatusCompleted, true},
		{models.RunStatusRunning, models.RunStatusEmpty, true},
		{models.RunStatusRunning, models.RunStatusFailed, true},
		{models.RunStatusRunning, models.RunStatusRunning, false},
		{models.RunStatusCompleted, models.RunStatusFailed, false},
		{models.RunStatusEmpty, models.RunStatusCompleted, false},
		{models.RunStatusFailed, models.RunStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := ValidateStateTransition(tt.from, tt.to)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, models.ErrInvalidRunStatus)
			}
		})
	}
}
