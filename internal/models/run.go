package models

import (
	"time"

	"gorm.io/datatypes"
)

// RunStatus 分析运行状态
type RunStatus string

const (
	// RunStatusRunning 正在分析
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted 分析完成并产生输出
	RunStatusCompleted RunStatus = "completed"
	// RunStatusEmpty 没有文档或没有相关章节，未产生输出
	RunStatusEmpty RunStatus = "empty"
	// RunStatusFailed 分析失败
	RunStatusFailed RunStatus = "failed"
)

// Valid 检查状态值是否合法
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusEmpty, RunStatusFailed:
		return true
	}
	return false
}

// AnalysisRun 一次分析的历史记录
type AnalysisRun struct {
	ID              string         `gorm:"primaryKey;size:36"`     // 运行ID
	Persona         string         `gorm:"type:text;not null"`     // 角色
	Task            string         `gorm:"type:text;not null"`     // 任务
	Documents       datatypes.JSON `gorm:"type:json"`              // 输入文档列表
	Status          RunStatus      `gorm:"size:20;not null;index"` // 状态
	Domain          string         `gorm:"size:20"`                // 识别出的领域
	SectionCount    int            `gorm:"not null;default:0"`     // 输出章节数
	SubsectionCount int            `gorm:"not null;default:0"`     // 输出段落数
	OutputPath      string         `gorm:"size:512"`               // 输出文件存储位置
	Output          datatypes.JSON `gorm:"type:json"`              // 输出内容
	Error           string         `gorm:"type:text"`              // 错误信息
	StartedAt       time.Time      `gorm:"not null;index"`         // 开始时间
	CompletedAt     *time.Time     `gorm:"index"`                  // 完成时间
	UpdatedAt       time.Time      `gorm:"not null"`               // 更新时间
}

// TableName 指定表名
func (AnalysisRun) TableName() string {
	return "analysis_runs"
}
