package relevance

// Domain 领域标签
type Domain string

const (
	DomainAcademic  Domain = "academic"
	DomainFinancial Domain = "financial"
	DomainTechnical Domain = "technical"
	DomainCulinary  Domain = "culinary"
	DomainGeneral   Domain = "general"
)

// KeywordSet 领域的正负关键词
type KeywordSet struct {
	Positive []string
	Negative []string
}

// DomainEntry 领域表中的一项
type DomainEntry struct {
	Domain   Domain
	Keywords KeywordSet
}

// domainTable 领域识别按顺序匹配，先命中者优先
var domainTable = []DomainEntry{
	{
		Domain: DomainAcademic,
		Keywords: KeywordSet{
			Positive: []string{"methodology", "dataset", "benchmark", "results", "conclusion", "abstract",
				"introduction", "literature", "review", "study", "experiment", "validation"},
			Negative: []string{"appendix", "references", "acknowledgments", "biography"},
		},
	},
	{
		Domain: DomainFinancial,
		Keywords: KeywordSet{
			Positive: []string{"revenue", "profit", "loss", "ebitda", "margin", "investment", "r&d", "assets",
				"liabilities", "equity", "cash flow", "outlook", "guidance", "market share",
				"strategy", "risk", "trends"},
			Negative: []string{"legal disclaimer", "forward-looking statements", "table of contents"},
		},
	},
	{
		Domain: DomainTechnical,
		Keywords: KeywordSet{
			Positive: []string{"create", "manage", "fillable", "form", "onboarding", "compliance", "tutorial",
				"how-to", "guide", "steps", "instructions", "configuration", "setup"},
			Negative: []string{"marketing", "overview", "pricing", "advertisement"},
		},
	},
	{
		Domain: DomainCulinary,
		Keywords: KeywordSet{
			Positive: []string{"vegetarian", "vegan", "dinner", "lunch", "breakfast", "dessert", "appetizer",
				"side dish", "gluten-free", "recipe", "ingredients", "instructions"},
			Negative: []string{"beef", "pork", "chicken", "lamb", "turkey", "veal", "duck", "sausage",
				"bacon", "ham", "sirloin", "steak", "mince", "patty", "fillet", "fish",
				"salmon", "tuna", "shrimp", "prawn", "crab", "lobster", "oyster"},
		},
	},
}

// stopWords 提取正向关键词时忽略的任务动词与虚词
var stopWords = map[string]struct{}{
	"prepare": {}, "provide": {}, "analyze": {}, "identify": {}, "summarize": {}, "focusing": {},
	"review": {}, "for": {}, "and": {}, "the": {}, "with": {}, "from": {}, "based": {}, "on": {},
	"using": {}, "given": {}, "acting": {}, "as": {}, "a": {}, "an": {}, "of": {}, "in": {},
	"to": {}, "is": {}, "are": {},
}

// distractorRule 查询包含Trigger时，文件名含Markers的文档被视为干扰项
type distractorRule struct {
	Trigger string
	Markers []string
}

// distractorRules 各领域的干扰标题规则
var distractorRules = map[Domain][]distractorRule{
	DomainCulinary: {
		{Trigger: "dinner", Markers: []string{"breakfast", "lunch"}},
		{Trigger: "lunch", Markers: []string{"breakfast", "dinner"}},
	},
}

// Domains 返回按匹配顺序排列的领域表副本
func Domains() []DomainEntry {
	out := make([]DomainEntry, len(domainTable))
	copy(out, domainTable)
	return out
}

// lookup 查找领域的关键词
func lookup(domain Domain) (KeywordSet, bool) {
	for _, entry := range domainTable {
		if entry.Domain == domain {
			return entry.Keywords, true
		}
	}
	return KeywordSet{}, false
}
