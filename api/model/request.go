package model

import "mime/multipart"

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// Offset 返回分页偏移量
func (p *PaginationRequest) Offset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// AnalysisCreateRequest 创建分析请求
type AnalysisCreateRequest struct {
	Persona string                  `form:"persona" binding:"required"` // 角色
	Task    string                  `form:"task" binding:"required"`    // 待完成的任务
	Files   []*multipart.FileHeader `form:"files" binding:"required"`   // PDF文件
}

// RunRequest 单个运行查询请求
type RunRequest struct {
	ID string `uri:"id" binding:"required"` // 运行ID
}

// RunListRequest 运行列表请求
type RunListRequest struct {
	PaginationRequest
	Status string `form:"status" binding:"omitempty,oneof=running completed empty failed"` // 状态过滤
}
