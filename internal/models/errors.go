package models

import "errors"

var (
	// ErrConfigNotFound 输入目录中没有运行配置文件
	ErrConfigNotFound = errors.New("run configuration not found")

	// ErrInvalidRunConfig 运行配置缺少必要字段或格式错误
	ErrInvalidRunConfig = errors.New("invalid run configuration")

	// ErrInputDirNotFound 输入目录不存在
	ErrInputDirNotFound = errors.New("input directory not found")

	// ErrNoDocuments 输入目录中没有PDF文档
	ErrNoDocuments = errors.New("no PDF documents found")

	// ErrNoRelevantSections 所有文档处理后没有留下任何章节
	ErrNoRelevantSections = errors.New("no relevant sections found")

	// ErrRunNotFound 分析记录不存在
	ErrRunNotFound = errors.New("analysis run not found")

	// ErrInvalidRunStatus 无效的分析状态
	ErrInvalidRunStatus = errors.New("invalid run status")
)
