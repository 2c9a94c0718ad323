package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/persona-doc-analyzer/internal/database"
	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
	"gorm.io/gorm"
)

// runRepository 运行历史仓储实现
type runRepository struct {
	db *gorm.DB
}

// NewRunRepository 使用全局数据库连接创建仓储
func NewRunRepository() RunRepository {
	return &runRepository{db: database.MustDB()}
}

// NewRunRepositoryWithDB 使用指定的数据库连接创建仓储
func NewRunRepositoryWithDB(db *gorm.DB) RunRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &runRepository{db: db}
}

// Create 创建运行记录
func (r *runRepository) Create(ctx context.Context, run *models.AnalysisRun) error {
	if run.ID == "" {
		return errors.New("run ID cannot be empty")
	}
	if !run.Status.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidRunStatus, run.Status)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(run).Error
}

// Update 更新运行记录
func (r *runRepository) Update(ctx context.Context, run *models.AnalysisRun) error {
	if run.ID == "" {
		return errors.New("run ID cannot be empty")
	}
	if !run.Status.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidRunStatus, run.Status)
	}
	return r.db.WithContext(ctx).Save(run).Error
}

// GetByID 根据ID获取运行记录
func (r *runRepository) GetByID(ctx context.Context, id string) (*models.AnalysisRun, error) {
	var run models.AnalysisRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
		}
		return nil, err
	}
	return &run, nil
}

// List 按开始时间倒序分页列出运行记录
func (r *runRepository) List(ctx context.Context, offset, limit int, status models.RunStatus) ([]*models.AnalysisRun, int64, error) {
	var runs []*models.AnalysisRun
	var total int64

	query := r.db.WithContext(ctx).Model(&models.AnalysisRun{})
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	// 计数与查询共用条件
	query = query.Session(&gorm.Session{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	// 列表不返回完整输出，减少传输量
	err := query.Omit("output").
		Order("started_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, total, nil
}

// Delete 删除运行记录
func (r *runRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.AnalysisRun{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
	}
	return nil
}
