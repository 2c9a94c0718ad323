package models

// RunConfig 输入目录中的运行配置
// 只使用persona.role与job_to_be_done.task两个字段
type RunConfig struct {
	Persona       Persona                `json:"persona" validate:"required"`
	JobToBeDone   JobToBeDone            `json:"job_to_be_done" validate:"required"`
	Documents     []InputDoc             `json:"documents,omitempty"`
	ChallengeInfo map[string]interface{} `json:"challenge_info,omitempty"`
}

// Persona 用户角色
type Persona struct {
	Role string `json:"role" validate:"required"`
}

// JobToBeDone 待完成的任务
type JobToBeDone struct {
	Task string `json:"task" validate:"required"`
}

// InputDoc 配置中列出的文档，仅作记录
type InputDoc struct {
	Filename string `json:"filename"`
	Title    string `json:"title,omitempty"`
}

// OutputMetadata 输出文件的元数据
type OutputMetadata struct {
	InputDocuments      []string `json:"input_documents"`
	Persona             string   `json:"persona"`
	JobToBeDone         string   `json:"job_to_be_done"`
	ProcessingTimestamp string   `json:"processing_timestamp"`
}

// ExtractedSection 输出中的排名章节
type ExtractedSection struct {
	Document       string `json:"document"`
	SectionTitle   string `json:"section_title"`
	PageNumber     int    `json:"page_number"`
	ImportanceRank int    `json:"importance_rank"`
}

// SubsectionAnalysis 输出中的段落摘录
type SubsectionAnalysis struct {
	Document    string `json:"document"`
	RefinedText string `json:"refined_text"`
	PageNumber  int    `json:"page_number"`
}

// Output 一次分析的完整输出
type Output struct {
	Metadata           OutputMetadata       `json:"metadata"`
	ExtractedSections  []ExtractedSection   `json:"extracted_sections"`
	SubsectionAnalysis []SubsectionAnalysis `json:"subsection_analysis"`
}

// Query 构造用于排序与过滤的查询文本
func (c RunConfig) Query() string {
	return BuildQuery(c.Persona.Role, c.JobToBeDone.Task)
}

// BuildQuery 根据角色与任务拼接查询文本
func BuildQuery(role, task string) string {
	return "Persona: " + role + ". Task: " + task
}
