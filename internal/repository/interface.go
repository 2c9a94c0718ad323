package repository

import (
	"context"

	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
)

// RunRepository 分析运行历史仓储接口
type RunRepository interface {
	// Create 创建运行记录
	Create(ctx context.Context, run *models.AnalysisRun) error

	// Update 更新运行记录
	Update(ctx context.Context, run *models.AnalysisRun) error

	// GetByID 根据ID获取运行记录
	GetByID(ctx context.Context, id string) (*models.AnalysisRun, error)

	// List 按开始时间倒序分页列出运行记录，status为空时不过滤
	List(ctx context.Context, offset, limit int, status models.RunStatus) ([]*models.AnalysisRun, int64, error)

	// Delete 删除运行记录
	Delete(ctx context.Context, id string) error
}
