package services

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
	"github.com/fyerfyer/persona-doc-analyzer/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// RunStatusManager 分析运行状态管理器
// 负责运行记录的生命周期：running 之后进入 completed、empty 或 failed 之一
type RunStatusManager struct {
	repo   repository.RunRepository
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewRunStatusManager 创建运行状态管理器
func NewRunStatusManager(repo repository.RunRepository, logger *logrus.Logger) *RunStatusManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &RunStatusManager{repo: repo, logger: logger}
}

// MarkAsRunning 创建处于running状态的运行记录
func (m *RunStatusManager) MarkAsRunning(ctx context.Context, runID, persona, task string, documents []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(documents))
	for i, d := range documents {
		names[i] = filepath.Base(d)
	}
	docs, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("failed to encode documents: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"run_id":    runID,
		"documents": len(documents),
	}).Info("Marking run as running")

	now := time.Now()
	return m.repo.Create(ctx, &models.AnalysisRun{
		ID:        runID,
		Persona:   persona,
		Task:      task,
		Documents: datatypes.JSON(docs),
		Status:    models.RunStatusRunning,
		StartedAt: now,
		UpdatedAt: now,
	})
}

// MarkAsCompleted 记录输出并将运行标记为完成
func (m *RunStatusManager) MarkAsCompleted(ctx context.Context, runID, domain, outputPath string, output *models.Output) error {
	payload, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	return m.transition(ctx, runID, models.RunStatusCompleted, func(run *models.AnalysisRun) {
		run.Domain = domain
		run.OutputPath = outputPath
		run.Output = datatypes.JSON(payload)
		run.SectionCount = len(output.ExtractedSections)
		run.SubsectionCount = len(output.SubsectionAnalysis)
	})
}

// MarkAsEmpty 将运行标记为没有产出
func (m *RunStatusManager) MarkAsEmpty(ctx context.Context, runID, domain, reason string) error {
	return m.transition(ctx, runID, models.RunStatusEmpty, func(run *models.AnalysisRun) {
		run.Domain = domain
		run.Error = reason
	})
}

// MarkAsFailed 将运行标记为失败
func (m *RunStatusManager) MarkAsFailed(ctx context.Context, runID, errorMsg string) error {
	return m.transition(ctx, runID, models.RunStatusFailed, func(run *models.AnalysisRun) {
		run.Error = errorMsg
	})
}

func (m *RunStatusManager) transition(ctx context.Context, runID string, to models.RunStatus, apply func(*models.AnalysisRun)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.repo.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if err := ValidateStateTransition(run.Status, to); err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}

	apply(run)
	now := time.Now()
	run.Status = to
	run.CompletedAt = &now
	run.UpdatedAt = now

	entry := m.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"status": to,
	})
	if to == models.RunStatusFailed {
		entry.WithField("error", run.Error).Error("Marking run as failed")
	} else {
		entry.Info("Marking run as finished")
	}
	return m.repo.Update(ctx, run)
}

// GetRun 获取运行记录
func (m *RunStatusManager) GetRun(ctx context.Context, runID string) (*models.AnalysisRun, error) {
	return m.repo.GetByID(ctx, runID)
}

// ListRuns 分页获取运行记录
func (m *RunStatusManager) ListRuns(ctx context.Context, offset, limit int, status models.RunStatus) ([]*models.AnalysisRun, int64, error) {
	return m.repo.List(ctx, offset, limit, status)
}

// ValidateStateTransition 验证状态转换的有效性
func ValidateStateTransition(from, to models.RunStatus) error {
	validTransitions := map[models.RunStatus][]models.RunStatus{
		models.RunStatusRunning: {
			models.RunStatusCompleted,
			models.RunStatusEmpty,
			models.RunStatusFailed,
		},
		// 终态
		models.RunStatusCompleted: {},
		models.RunStatusEmpty:     {},
		models.RunStatusFailed:    {},
	}

	for _, validTo := range validTransitions[from] {
		if validTo == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", models.ErrInvalidRunStatus, from, to)
}
