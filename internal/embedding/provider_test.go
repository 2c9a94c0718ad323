package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		// 故意倒序返回，客户端需按index还原
		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), 0.5},
			})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req.Model,
		})
	}))
	defer server.Close()

	client, err := New(Config{Provider: "openai", APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", client.Name())

	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(0), vectors[0][0])
	assert.Equal(t, float32(2), vectors[2][0])

	_, err = client.Embed(context.Background(), "")
	assert.True(t, IsCode(err, CodeEmptyInput))
}

func TestOpenAIClientUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client, err := New(Config{Provider: "openai", APIKey: "wrong", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "text")
	assert.True(t, IsCode(err, CodeUnauthorized))
}

func TestTongyiClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req dashScopeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-v3", req.Model)
		require.NotNil(t, req.Parameters)
		assert.Equal(t, 512, req.Parameters.Dimension)

		var resp dashScopeResponse
		for i := range req.Input.Texts {
			resp.Output.Embeddings = append(resp.Output.Embeddings, dashScopeEmbedding{
				Embedding: []float32{float32(i)},
				TextIndex: i,
			})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewTongyiClient(Config{APIKey: "k", BaseURL: server.URL, Dimensions: 512})
	require.NoError(t, err)

	vectors, err := client.EmbedBatch(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0}, {1}}, vectors)

	tooMany := make([]string, 11)
	for i := range tooMany {
		tooMany[i] = "t"
	}
	_, err = client.EmbedBatch(context.Background(), tooMany)
	assert.True(t, IsCode(err, CodeBadRequest))

	_, err = NewTongyiClient(Config{APIKey: "k", Dimensions: 100})
	assert.True(t, IsCode(err, CodeBadRequest))
}
