package relevance

import (
	"sort"
	"strings"
	"unicode"

	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// defaultSimilarity 章节缺少相似度时使用的基础分
	defaultSimilarity = 0.5
	// distractorPenalty 干扰文档的惩罚系数
	distractorPenalty = 0.1
	// keywordBoost 每命中一个正向关键词的加成
	keywordBoost = 0.2
)

// Profile 由查询得出的领域画像，构造后不再修改
type Profile struct {
	Domain      Domain
	Positive    []string
	Negative    []string
	Distractors []string
}

// Filter 按领域规则过滤并重排章节
type Filter struct {
	profile Profile
	logger  *logrus.Logger
}

// FilterOption 过滤器配置选项
type FilterOption func(*Filter)

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) FilterOption {
	return func(f *Filter) {
		f.logger = logger
	}
}

// NewFilter 根据查询构建过滤器
func NewFilter(query string, opts ...FilterOption) *Filter {
	f := &Filter{
		profile: BuildProfile(query),
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.logger.WithFields(logrus.Fields{
		"domain":      f.profile.Domain,
		"positive":    f.profile.Positive,
		"negative":    len(f.profile.Negative),
		"distractors": f.profile.Distractors,
	}).Info("Relevance filter initialized")
	return f
}

// Profile 返回领域画像
func (f *Filter) Profile() Profile {
	return f.profile
}

// Domain 返回识别出的领域
func (f *Filter) Domain() Domain {
	return f.profile.Domain
}

// PositiveKeywords 返回排序后的正向关键词
func (f *Filter) PositiveKeywords() []string {
	out := make([]string, len(f.profile.Positive))
	copy(out, f.profile.Positive)
	return out
}

// BuildProfile 从查询文本构建领域画像
func BuildProfile(query string) Profile {
	lower := strings.ToLower(query)
	domain := IdentifyDomain(lower)

	negatives := make(map[string]struct{})
	if keywords, ok := lookup(domain); ok {
		addAll(negatives, keywords.Negative)
	}
	if domain == DomainCulinary && (strings.Contains(lower, "vegetarian") || strings.Contains(lower, "vegan")) {
		culinary, _ := lookup(DomainCulinary)
		addAll(negatives, culinary.Negative)
	}

	distractors := make(map[string]struct{})
	for _, rule := range distractorRules[domain] {
		if strings.Contains(lower, rule.Trigger) {
			addAll(distractors, rule.Markers)
		}
	}

	return Profile{
		Domain:      domain,
		Positive:    extractPositive(lower),
		Negative:    sortedKeys(negatives),
		Distractors: sortedKeys(distractors),
	}
}

// IdentifyDomain 返回第一个正负关键词出现在查询中的领域，均未命中时为general
func IdentifyDomain(query string) Domain {
	lower := strings.ToLower(query)
	for _, entry := range domainTable {
		if containsAny(lower, entry.Keywords.Positive) || containsAny(lower, entry.Keywords.Negative) {
			return entry.Domain
		}
	}
	return DomainGeneral
}

func extractPositive(lower string) []string {
	set := make(map[string]struct{})
	for _, word := range keywordTokens(lower) {
		if _, stop := stopWords[word]; stop {
			continue
		}
		set[word] = struct{}{}
	}
	return sortedKeys(set)
}

// keywordTokens 找出所有以词边界包围的 [a-z][a-z-]{2,} 片段
// 词边界按Unicode判断：字母、数字和下划线都算词字符，
// 所以"résumé"里的"sum"不会被当作独立的词
func keywordTokens(text string) []string {
	runes := []rune(text)
	var tokens []string
	for i := 0; i < len(runes); {
		if end := matchKeywordAt(runes, i); end > 0 {
			tokens = append(tokens, string(runes[i:end]))
			i = end
			continue
		}
		i++
	}
	return tokens
}

// matchKeywordAt 返回从i开始的最长合法匹配的结束位置，不匹配时返回0
func matchKeywordAt(runes []rune, i int) int {
	if !isASCIILower(runes[i]) || (i > 0 && isWordRune(runes[i-1])) {
		return 0
	}
	j := i + 1
	for j < len(runes) && (isASCIILower(runes[j]) || runes[j] == '-') {
		j++
	}
	// 贪婪匹配后回退，直到结尾落在词边界上
	for end := j; end >= i+3; end-- {
		after := end < len(runes) && isWordRune(runes[end])
		if isWordRune(runes[end-1]) != after {
			return end
		}
	}
	return 0
}

func isASCIILower(r rune) bool {
	return r >= 'a' && r <= 'z'
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// FilterAndRerank 过滤含负向关键词的章节，计算final_score后按降序稳定排序
func (f *Filter) FilterAndRerank(sections []models.Section) []models.Section {
	result := make([]models.Section, 0, len(sections))
	for _, section := range sections {
		content := strings.ToLower(section.Content)
		docName := strings.ToLower(section.Document)

		if neg, hit := firstMatch(content, f.profile.Negative); hit {
			f.logger.WithFields(logrus.Fields{
				"document": section.Document,
				"page":     section.PageNumber,
				"keyword":  neg,
			}).Debug("Section dropped by negative keyword")
			continue
		}

		score := section.Similarity(defaultSimilarity)
		if containsAny(docName, f.profile.Distractors) {
			score *= distractorPenalty
			f.logger.WithFields(logrus.Fields{
				"document": section.Document,
				"page":     section.PageNumber,
			}).Debug("Section penalized by distracting document title")
		}

		hits := 0
		for _, kw := range f.profile.Positive {
			if strings.Contains(content, kw) {
				hits++
			}
		}
		if hits > 0 {
			score *= 1.0 + keywordBoost*float64(hits)
		}

		section.FinalScore = score
		result = append(result, section)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].FinalScore > result[j].FinalScore
	})
	return result
}

func containsAny(text string, keywords []string) bool {
	_, ok := firstMatch(text, keywords)
	return ok
}

func firstMatch(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}

func addAll(set map[string]struct{}, values []string) {
	for _, v := range values {
		set[v] = struct{}{}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
