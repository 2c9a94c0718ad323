package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fyerfyer/persona-doc-analyzer/internal/document"
	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
	"github.com/fyerfyer/persona-doc-analyzer/internal/relevance"
	"github.com/fyerfyer/persona-doc-analyzer/pkg/storage"
	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ratatouilleText = "A vegetarian dinner classic of slow cooked aubergine, courgette, peppers and tomato served warm."
	ratatouilleNote = "Serve it with crusty bread and a green salad for a relaxed evening meal."
	beefText        = "Brown the beef in batches then braise slowly with red wine and onions until tender."
	beefNote        = "Finish with mushrooms and parsley before serving to your hungry guests."
	granolaText     = "Toasted oats with honey and nuts make a crunchy vegetarian breakfast that keeps for weeks."
	granolaNote     = "Store the granola in an airtight jar and serve it with yogurt and fruit."

	testPersona = "Food Contractor"
	testTask    = "Prepare a vegetarian dinner menu"
)

type testSection struct {
	title      string
	paragraphs []string
}

// stubRanker 按标题返回预设相似度，未设置的标题得0.5
type stubRanker struct {
	mu     sync.Mutex
	scores map[string]float64
	err    error
	calls  int
}

func (r *stubRanker) Rank(_ context.Context, _ string, sections []models.Section) ([]models.Section, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	out := make([]models.Section, len(sections))
	for i, s := range sections {
		score, ok := r.scores[s.Title]
		if !ok {
			score = 0.5
		}
		out[i] = s.WithSimilarity(score)
	}
	return out, nil
}

// fakeReader 返回预置页面，未登记的文件视为无法打开
type fakeReader struct {
	pages map[string][]document.Page
}

func (r *fakeReader) ReadLayout(_ context.Context, filePath string) ([]document.Page, error) {
	pages, ok := r.pages[filepath.Base(filePath)]
	if !ok {
		return nil, &document.OpenError{Path: filePath, Err: errors.New("not a pdf")}
	}
	return pages, nil
}

func (r *fakeReader) factory() ReaderFactory {
	return func(string, ...document.ReaderOption) (document.LayoutReader, error) {
		return r, nil
	}
}

// stubRefiner 记录调用并按需失败
type stubRefiner struct {
	failOn    string
	refined   int
	summaries int
}

func (r *stubRefiner) RefineText(_ context.Context, _ string, text string) (string, error) {
	if r.failOn != "" && strings.Contains(text, r.failOn) {
		return "", errors.New("generation failed")
	}
	r.refined++
	return "refined: " + text, nil
}

func (r *stubRefiner) Summarize(_ context.Context, _ string, text string) (string, error) {
	r.summaries++
	return "summary: " + text, nil
}

func layoutPage(number int, sections ...testSection) document.Page {
	page := document.Page{Number: number}
	for _, s := range sections {
		page.Blocks = append(page.Blocks, document.Block{Lines: []document.Line{{Runs: []document.TextRun{
			{Text: s.title, FontName: "Helvetica-Bold", FontSize: 18},
		}}}})
		for _, p := range s.paragraphs {
			page.Blocks = append(page.Blocks, document.Block{Lines: []document.Line{{Runs: []document.TextRun{
				{Text: p, FontName: "Helvetica", FontSize: 12},
			}}}})
		}
	}
	return page
}

func recipeReader() *fakeReader {
	return &fakeReader{pages: map[string][]document.Page{
		"Dinner Ideas - Mains.pdf": {
			layoutPage(1, testSection{"Ratatouille", []string{ratatouilleText, ratatouilleNote}}),
			layoutPage(2, testSection{"Beef Bourguignon", []string{beefText, beefNote}}),
		},
		"Breakfast Ideas.pdf": {
			layoutPage(1, testSection{"Granola", []string{granolaText, granolaNote}}),
		},
	}}
}

func newLocalStore(t *testing.T) *storage.LocalStorage {
	t.Helper()
	store, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	return store
}

func fixedClock() time.Time {
	return time.Date(2025, 7, 10, 12, 30, 45, 123456000, time.FixedZone("CEST", 2*3600))
}

func readOutputFile(t *testing.T, store *storage.LocalStorage, key string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(store.BasePath(), key))
	require.NoError(t, err)
	return string(data)
}

func TestAnalyzeBuildsConsolidatedOutput(t *testing.T) {
	store := newLocalStore(t)
	reader := recipeReader()
	ranker := &stubRanker{}

	var progress []string
	srv := NewAnalysisService(ranker, store,
		WithLogger(logrus.New()),
		WithReaderFactory(reader.factory()),
		WithClock(fixedClock),
		WithProgress(func(done, total int, doc string) {
			progress = append(progress, doc)
			assert.Equal(t, 3, total)
		}),
	)

	result, err := srv.Analyze(context.Background(), AnalysisRequest{
		Persona: testPersona,
		Task:    testTask,
		Documents: []string{
			"/in/Dinner Ideas - Mains.pdf",
			"/in/Breakfast Ideas.pdf",
			"/in/broken.pdf",
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, relevance.DomainCulinary, result.Domain)
	assert.Equal(t, 2, ranker.calls)
	assert.Equal(t, []string{"Dinner Ideas - Mains.pdf", "Breakfast Ideas.pdf", "broken.pdf"}, progress)

	out := result.Output
	assert.Equal(t, []string{"Dinner Ideas - Mains.pdf", "Breakfast Ideas.pdf", "broken.pdf"}, out.Metadata.InputDocuments)
	assert.Equal(t, testPersona, out.Metadata.Persona)
	assert.Equal(t, testTask, out.Metadata.JobToBeDone)
	assert.Equal(t, "2025-07-10T10:30:45.123456+00:00", out.Metadata.ProcessingTimestamp)

	require.Len(t, out.ExtractedSections, 2)
	assert.Equal(t, models.ExtractedSection{
		Document: "Dinner Ideas - Mains.pdf", SectionTitle: "Ratatouille", PageNumber: 1, ImportanceRank: 1,
	}, out.ExtractedSections[0])
	assert.Equal(t, models.ExtractedSection{
		Document: "Breakfast Ideas.pdf", SectionTitle: "Granola", PageNumber: 1, ImportanceRank: 2,
	}, out.ExtractedSections[1])

	require.Len(t, out.SubsectionAnalysis, 2)
	assert.Equal(t, ratatouilleText, out.SubsectionAnalysis[0].RefinedText)
	assert.Equal(t, granolaText, out.SubsectionAnalysis[1].RefinedText)

	assert.Equal(t, filepath.Join(store.BasePath(), "output.json"), result.OutputLocation)
	raw := readOutputFile(t, store, "output.json")
	assert.Contains(t, raw, "\n    \"metadata\": {\n        \"input_documents\": [")
	assert.NotContains(t, raw, "Beef Bourguignon")
	assert.NotContains(t, raw, "similarity_score")
}

func TestAnalyzeRecordsRunHistory(t *testing.T) {
	manager, cleanup := newStatusManager(t)
	defer cleanup()
	store := newLocalStore(t)

	srv := NewAnalysisService(&stubRanker{}, store,
		WithReaderFactory(recipeReader().factory()),
		WithStatusManager(manager),
	)

	result, err := srv.Analyze(context.Background(), AnalysisRequest{
		RunID:     "run-42",
		Persona:   testPersona,
		Task:      testTask,
		Documents: []string{"/in/Dinner Ideas - Mains.pdf"},
		OutputKey: storage.RunKey("run-42", "output.json"),
	})
	require.NoError(t, err)
	assert.Equal(t, "run-42", result.RunID)

	run, err := manager.GetRun(context.Background(), "run-42")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, "culinary", run.Domain)
	assert.Equal(t, 1, run.SectionCount)
	assert.Equal(t, result.OutputLocation, run.OutputPath)
	assert.FileExists(t, filepath.Join(store.BasePath(), "runs", "run-42", "output.json"))
}

func TestAnalyzeNoRelevantSections(t *testing.T) {
	manager, cleanup := newStatusManager(t)
	defer cleanup()
	store := newLocalStore(t)

	reader := &fakeReader{pages: map[string][]document.Page{
		"Dinner Ideas - Mains.pdf": {
			layoutPage(1, testSection{"Beef Bourguignon", []string{beefText, beefNote}}),
		},
	}}
	srv := NewAnalysisService(&stubRanker{}, store,
		WithReaderFactory(reader.factory()),
		WithStatusManager(manager),
	)

	_, err := srv.Analyze(context.Background(), AnalysisRequest{
		RunID:     "run-empty",
		Persona:   testPersona,
		Task:      testTask,
		Documents: []string{"/in/Dinner Ideas - Mains.pdf"},
	})
	require.ErrorIs(t, err, models.ErrNoRelevantSections)

	exists, err := store.Exists(context.Background(), "output.json")
	require.NoError(t, err)
	assert.False(t, exists)

	run, err := manager.GetRun(context.Background(), "run-empty")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusEmpty, run.Status)
}

func TestAnalyzeRankerFailureIsFatal(t *testing.T) {
	manager, cleanup := newStatusManager(t)
	defer cleanup()
	store := newLocalStore(t)

	ranker := &stubRanker{err: errors.New("embedding service unavailable")}
	srv := NewAnalysisService(ranker, store,
		WithReaderFactory(recipeReader().factory()),
		WithStatusManager(manager),
	)

	_, err := srv.Analyze(context.Background(), AnalysisRequest{
		RunID:     "run-failed",
		Persona:   testPersona,
		Task:      testTask,
		Documents: []string{"/in/Dinner Ideas - Mains.pdf", "/in/Breakfast Ideas.pdf"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding service unavailable")
	assert.Equal(t, 1, ranker.calls)

	run, err := manager.GetRun(context.Background(), "run-failed")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "embedding service unavailable")
}

func TestAnalyzeWithoutDocuments(t *testing.T) {
	srv := NewAnalysisService(&stubRanker{}, newLocalStore(t))
	_, err := srv.Analyze(context.Background(), AnalysisRequest{Persona: testPersona, Task: testTask})
	assert.ErrorIs(t, err, models.ErrNoDocuments)
}

func TestAnalyzeRefinesParagraphs(t *testing.T) {
	refiner := &stubRefiner{failOn: "oats"}
	srv := NewAnalysisService(&stubRanker{}, newLocalStore(t),
		WithReaderFactory(recipeReader().factory()),
		WithRefiner(refiner, RefineModeRefine),
	)

	result, err := srv.Analyze(context.Background(), AnalysisRequest{
		Persona:   testPersona,
		Task:      testTask,
		Documents: []string{"/in/Dinner Ideas - Mains.pdf", "/in/Breakfast Ideas.pdf"},
	})
	require.NoError(t, err)

	subs := result.Output.SubsectionAnalysis
	require.Len(t, subs, 2)
	assert.Equal(t, "refined: "+ratatouilleText, subs[0].RefinedText)
	// 改写失败时保留原文
	assert.Equal(t, granolaText, subs[1].RefinedText)
	assert.Equal(t, 1, refiner.refined)
	assert.Zero(t, refiner.summaries)
}

func TestAnalyzeSummarizeMode(t *testing.T) {
	refiner := &stubRefiner{}
	srv := NewAnalysisService(&stubRanker{}, newLocalStore(t),
		WithReaderFactory(recipeReader().factory()),
		WithRefiner(refiner, RefineModeSummarize),
	)

	result, err := srv.Analyze(context.Background(), AnalysisRequest{
		Persona:   testPersona,
		Task:      testTask,
		Documents: []string{"/in/Dinner Ideas - Mains.pdf"},
	})
	require.NoError(t, err)
	require.Len(t, result.Output.SubsectionAnalysis, 1)
	assert.Equal(t, "summary: "+ratatouilleText, result.Output.SubsectionAnalysis[0].RefinedText)
	assert.Zero(t, refiner.refined)
}

func TestEncodeOutputKeepsNonASCII(t *testing.T) {
	data, err := EncodeOutput(&models.Output{
		Metadata: models.OutputMetadata{
			InputDocuments: []string{"Crème brûlée.pdf"},
			Persona:        "Chef <pâtissier> & co",
		},
	})
	require.NoError(t, err)

	raw := string(data)
	assert.Contains(t, raw, "Crème brûlée.pdf")
	assert.Contains(t, raw, "Chef <pâtissier> & co")
	assert.Contains(t, raw, "\n    \"extracted_sections\": null")
}

func TestFormatTimestamp(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*3600)
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2025, 7, 10, 10, 30, 45, 123456789, time.UTC), "2025-07-10T10:30:45.123456+00:00"},
		{time.Date(2025, 7, 10, 10, 30, 45, 0, time.UTC), "2025-07-10T10:30:45+00:00"},
		{time.Date(2025, 7, 10, 10, 30, 45, 999, time.UTC), "2025-07-10T10:30:45+00:00"},
		{time.Date(2025, 7, 10, 18, 30, 45, 5000, shanghai), "2025-07-10T10:30:45.000005+00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimestamp(tt.in))
	}
}

// writeRecipePDF 生成带粗体大字号标题的PDF
func writeRecipePDF(t *testing.T, path string, pages ...[]testSection) {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	for _, sections := range pages {
		pdf.AddPage()
		for _, s := range sections {
			pdf.SetFont("Arial", "B", 16)
			pdf.Cell(0, 10, s.title)
			pdf.Ln(14)
			pdf.SetFont("Arial", "", 12)
			for _, p := range s.paragraphs {
				pdf.MultiCell(0, 6, p, "", "L", false)
				pdf.Ln(8)
			}
		}
	}
	require.NoError(t, pdf.OutputFileAndClose(path))
}

func TestRunProcessesInputDirectory(t *testing.T) {
	inputDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "challenge1b_input.json"), []byte(`{
		"challenge_info": {"challenge_id": "round_1b_001"},
		"documents": [{"filename": "Dinner Ideas - Mains.pdf", "title": "Dinner Ideas - Mains"}],
		"persona": {"role": "Food Contractor"},
		"job_to_be_done": {"task": "Prepare a vegetarian dinner menu"}
	}`), 0644))
	writeRecipePDF(t, filepath.Join(inputDir, "Dinner Ideas - Mains.pdf"),
		[]testSection{{"Ratatouille", []string{ratatouilleText, ratatouilleNote}}},
		[]testSection{{"Beef Bourguignon", []string{beefText, beefNote}}},
	)
	writeRecipePDF(t, filepath.Join(inputDir, "Breakfast Ideas.pdf"),
		[]testSection{{"Granola", []string{granolaText, granolaNote}}},
	)

	store := newLocalStore(t)
	srv := NewAnalysisService(&stubRanker{}, store, WithClock(fixedClock))

	result, err := srv.Run(context.Background(), inputDir)
	require.NoError(t, err)

	out := result.Output
	assert.Equal(t, []string{"Breakfast Ideas.pdf", "Dinner Ideas - Mains.pdf"}, out.Metadata.InputDocuments)
	assert.Equal(t, "Food Contractor", out.Metadata.Persona)
	require.Len(t, out.ExtractedSections, 2)
	assert.Equal(t, "Ratatouille", out.ExtractedSections[0].SectionTitle)
	assert.Equal(t, "Granola", out.ExtractedSections[1].SectionTitle)
	for _, s := range out.ExtractedSections {
		assert.NotEqual(t, "Beef Bourguignon", s.SectionTitle)
	}

	raw := readOutputFile(t, store, "output.json")
	assert.Contains(t, raw, `"processing_timestamp": "2025-07-10T10:30:45.123456+00:00"`)
}

func TestRunWithoutPDFs(t *testing.T) {
	inputDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "input.json"),
		[]byte(`{"persona": {"role": "Analyst"}, "job_to_be_done": {"task": "Review revenue"}}`), 0644))

	srv := NewAnalysisService(&stubRanker{}, newLocalStore(t))
	_, err := srv.Run(context.Background(), inputDir)
	assert.ErrorIs(t, err, models.ErrNoDocuments)
}

func TestRunInvalidConfig(t *testing.T) {
	inputDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "input.json"), []byte(`{"persona": {}}`), 0644))

	srv := NewAnalysisService(&stubRanker{}, newLocalStore(t))
	_, err := srv.Run(context.Background(), inputDir)
	assert.ErrorIs(t, err, models.ErrInvalidRunConfig)
}

func TestDiscoverInputs(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, _, err := DiscoverInputs(filepath.Join(t.TempDir(), "nope"), "*.json", "*.pdf")
		assert.ErrorIs(t, err, models.ErrInputDirNotFound)
	})

	t.Run("missing config", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("x"), 0644))
		_, _, err := DiscoverInputs(dir, "*.json", "*.pdf")
		assert.ErrorIs(t, err, models.ErrConfigNotFound)
	})

	t.Run("sorted matches", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"z.json", "b.json", "c.pdf", "a.pdf", "notes.txt"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
		}
		require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.pdf"), 0755))

		cfg, docs, err := DiscoverInputs(dir, "*.json", "*.pdf")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "b.json"), cfg)
		assert.Equal(t, []string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "c.pdf")}, docs)
	})
}
