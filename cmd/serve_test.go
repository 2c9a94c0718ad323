package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyerfyer/persona-doc-analyzer/api/model"
	appconfig "github.com/fyerfyer/persona-doc-analyzer/config"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadRequest(t *testing.T, persona, task string, files ...string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("persona", persona))
	require.NoError(t, writer.WriteField("task", task))
	for _, path := range files {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		part, err := writer.CreateFormFile("files", filepath.Base(path))
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyses", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestServeRouterRecordsRuns(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := newEmbeddingService(t)

	c, err := appconfig.Load(writeConfig(t, service.URL))
	require.NoError(t, err)
	dir := t.TempDir()
	c.Database.DSN = filepath.Join(dir, "runs.db")
	c.Storage.Path = filepath.Join(dir, "analyses")
	c.Server.UploadDir = filepath.Join(dir, "uploads")

	router, cleanup, err := newServeRouter(context.Background(), c, logrus.New())
	require.NoError(t, err)
	defer cleanup()

	pdfPath := filepath.Join(t.TempDir(), "Dinner Ideas - Mains.pdf")
	writePDF(t, pdfPath, [][2]string{{"Ratatouille",
		"A vegetarian dinner classic of slow cooked aubergine, courgette, peppers and tomato served warm.\n" +
			"Serve it with crusty bread and a green salad for a relaxed evening meal."}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "Food Contractor", "Prepare a vegetarian dinner menu", pdfPath))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var created model.AnalysisResponse
	resp := model.Response{Data: &created}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, created.RunID)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analyses/"+created.RunID, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var detail model.RunDetailResponse
	resp = model.Response{Data: &detail}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "completed", detail.Status)
	assert.Equal(t, 1, detail.SectionCount)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analyses", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var list model.RunListResponse
	resp = model.Response{Data: &list}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), list.Total)
	require.Len(t, list.Runs, 1)
	assert.Equal(t, created.RunID, list.Runs[0].ID)
}
