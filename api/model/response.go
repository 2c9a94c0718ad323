package model

import (
	"encoding/json"
	"time"

	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// AnalysisResponse 分析完成响应
type AnalysisResponse struct {
	RunID          string         `json:"run_id"`          // 运行ID
	Domain         string         `json:"domain"`          // 识别出的领域
	OutputLocation string         `json:"output_location"` // 输出文件位置
	Output         *models.Output `json:"output"`          // 输出内容
}

// RunInfo 运行记录摘要
type RunInfo struct {
	ID              string     `json:"run_id"`
	Persona         string     `json:"persona"`
	Task            string     `json:"task"`
	Documents       []string   `json:"documents"`
	Status          string     `json:"status"`
	Domain          string     `json:"domain,omitempty"`
	SectionCount    int        `json:"section_count"`
	SubsectionCount int        `json:"subsection_count"`
	OutputPath      string     `json:"output_path,omitempty"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// RunDetailResponse 运行详情，包含完整输出
type RunDetailResponse struct {
	RunInfo
	Output *models.Output `json:"output,omitempty"`
}

// RunListResponse 运行列表响应
type RunListResponse struct {
	Total    int64     `json:"total"`     // 总数量
	Page     int       `json:"page"`      // 当前页码
	PageSize int       `json:"page_size"` // 每页大小
	Runs     []RunInfo `json:"runs"`      // 运行列表
}

// ConvertToRunInfo 将运行记录转换为响应摘要
func ConvertToRunInfo(run *models.AnalysisRun) RunInfo {
	info := RunInfo{
		ID:              run.ID,
		Persona:         run.Persona,
		Task:            run.Task,
		Documents:       []string{},
		Status:          string(run.Status),
		Domain:          run.Domain,
		SectionCount:    run.SectionCount,
		SubsectionCount: run.SubsectionCount,
		OutputPath:      run.OutputPath,
		Error:           run.Error,
		StartedAt:       run.StartedAt,
		CompletedAt:     run.CompletedAt,
	}
	if len(run.Documents) > 0 {
		_ = json.Unmarshal(run.Documents, &info.Documents)
	}
	return info
}

// ConvertToRunDetail 转换运行记录并解出存储的输出
func ConvertToRunDetail(run *models.AnalysisRun) (RunDetailResponse, error) {
	detail := RunDetailResponse{RunInfo: ConvertToRunInfo(run)}
	if len(run.Output) == 0 {
		return detail, nil
	}
	var output models.Output
	if err := json.Unmarshal(run.Output, &output); err != nil {
		return detail, err
	}
	detail.Output = &output
	return detail, nil
}
