package models

// Section 从单个页面中切分出的章节
// 内容由块文本以换行符拼接而成
type Section struct {
	Document   string `json:"document"`      // 来源文档文件名
	PageNumber int    `json:"page_number"`   // 页码，从1开始
	Title      string `json:"section_title"` // 章节标题
	Content    string `json:"content"`       // 章节正文

	// SimilarityScore 语义排序得分，未排序时为nil
	SimilarityScore *float64 `json:"similarity_score,omitempty"`
	// FinalScore 领域过滤后的最终得分
	FinalScore float64 `json:"final_score"`
}

// WithSimilarity 返回带有相似度得分的副本
func (s Section) WithSimilarity(score float64) Section {
	s.SimilarityScore = &score
	return s
}

// Similarity 返回相似度得分，未设置时返回fallback
func (s Section) Similarity(fallback float64) float64 {
	if s.SimilarityScore == nil {
		return fallback
	}
	return *s.SimilarityScore
}
