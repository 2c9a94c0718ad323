package aggregate

import (
	"fmt"
	"testing"

	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ranked(doc, title string, page int, score float64, content string) models.Section {
	return models.Section{Document: doc, Title: title, PageNumber: page, Content: content, FinalScore: score}
}

const veggieParagraph = "Roast the vegetarian lasagne for forty minutes until golden and bubbling"

func TestAggregateGlobalOrderAndDedup(t *testing.T) {
	sections := []models.Section{
		ranked("a.pdf", "Sides", 1, 0.4, veggieParagraph),
		ranked("a.pdf", "Mains", 2, 0.3, veggieParagraph),
		ranked("b.pdf", "Mains", 4, 0.9, veggieParagraph),
		ranked("b.pdf", "Desserts", 5, 0.7, veggieParagraph),
	}

	res, err := NewAggregator().Aggregate(sections, []string{"vegetarian"})
	require.NoError(t, err)
	require.Len(t, res.Sections, 3)

	assert.Equal(t, models.ExtractedSection{Document: "b.pdf", SectionTitle: "Mains", PageNumber: 4, ImportanceRank: 1}, res.Sections[0])
	assert.Equal(t, "Desserts", res.Sections[1].SectionTitle)
	assert.Equal(t, 2, res.Sections[1].ImportanceRank)
	assert.Equal(t, "Sides", res.Sections[2].SectionTitle)
	assert.Equal(t, 3, res.Sections[2].ImportanceRank)

	// 段落不去重
	assert.Len(t, res.Subsections, 4)
	assert.Equal(t, "b.pdf", res.Subsections[0].Document)
	assert.Equal(t, 4, res.Subsections[0].PageNumber)
}

func TestAggregateCapsAtTopFive(t *testing.T) {
	var sections []models.Section
	for i := 0; i < 12; i++ {
		sections = append(sections, ranked("doc.pdf", fmt.Sprintf("Title %d", i), i+1, float64(100-i), veggieParagraph))
	}

	res, err := NewAggregator().Aggregate(sections, []string{"lasagne"})
	require.NoError(t, err)
	require.Len(t, res.Sections, 5)
	for i, s := range res.Sections {
		assert.Equal(t, i+1, s.ImportanceRank)
		assert.Equal(t, fmt.Sprintf("Title %d", i), s.SectionTitle)
	}
	// 只从前10个章节中提取段落
	assert.Len(t, res.Subsections, 10)
}

func TestAggregateParagraphRules(t *testing.T) {
	content := "Too short vegetarian line\n\n" +
		veggieParagraph + "\n" +
		"This paragraph has plenty of words but none of the query terms at all\n\n\n" +
		"  Vegetarian   stock   simmered with herbs for a rich base flavour  "

	res, err := NewAggregator().Aggregate([]models.Section{ranked("a.pdf", "Soups", 3, 1, content)}, []string{"vegetarian"})
	require.NoError(t, err)
	require.Len(t, res.Subsections, 2)
	assert.Equal(t, veggieParagraph, res.Subsections[0].RefinedText)
	assert.Equal(t, "Vegetarian   stock   simmered with herbs for a rich base flavour", res.Subsections[1].RefinedText)
	assert.Equal(t, 3, res.Subsections[1].PageNumber)
}

func TestAggregateEmptyInput(t *testing.T) {
	_, err := NewAggregator().Aggregate(nil, []string{"x"})
	assert.ErrorIs(t, err, models.ErrNoRelevantSections)
}

func TestAggregateIsIdempotent(t *testing.T) {
	sections := []models.Section{
		ranked("a.pdf", "Same", 1, 0.5, veggieParagraph),
		ranked("b.pdf", "Same", 2, 0.5, veggieParagraph),
		ranked("c.pdf", "Other", 3, 0.5, veggieParagraph),
	}
	agg := NewAggregator()

	first, err := agg.Aggregate(sections, []string{"vegetarian"})
	require.NoError(t, err)
	second, err := agg.Aggregate(sections, []string{"vegetarian"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// 同分时保持拼接顺序
	require.Len(t, first.Sections, 2)
	assert.Equal(t, "a.pdf", first.Sections[0].Document)
	assert.Equal(t, "c.pdf", first.Sections[1].Document)
}

func TestAggregateOptions(t *testing.T) {
	sections := []models.Section{
		ranked("a.pdf", "A", 1, 3, "vegetarian soup"),
		ranked("a.pdf", "B", 1, 2, "vegetarian soup"),
		ranked("a.pdf", "C", 1, 1, "vegetarian soup"),
	}
	res, err := NewAggregator(WithTopSections(2), WithSubsectionWindow(1), WithMinParagraphWords(2)).
		Aggregate(sections, []string{"soup"})
	require.NoError(t, err)
	assert.Len(t, res.Sections, 2)
	require.Len(t, res.Subsections, 1)
	assert.Equal(t, "vegetarian soup", res.Subsections[0].RefinedText)
}

func TestSplitParagraphs(t *testing.T) {
	assert.Equal(t, []string{"one", "two", "three"}, SplitParagraphs("one\n\ntwo\nthree\n"))
	assert.Empty(t, SplitParagraphs("\n\n"))
}
