package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiServer(t *testing.T, status int, reply string) (*httptest.Server, *geminiRequest) {
	t.Helper()
	var captured geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("x-goog-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func textReply(text string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"candidates": []interface{}{
			map[string]interface{}{"content": map[string]interface{}{"parts": []interface{}{map[string]string{"text": text}}}},
		},
	})
	return string(b)
}

func TestGeminiInlineImage(t *testing.T) {
	srv, captured := geminiServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[
		{"text":"here you go"},
		{"inlineData":{"mimeType":"image/jpeg","data":"AAAA"}}
	]}}]}`)
	client := NewGeminiClient(srv.URL, "key-1", 5*time.Second)

	res, err := client.GenerateImage(context.Background(), ImageRequest{
		Model:       "test-model",
		Prompt:      "portrait",
		Images:      []string{"Zm9v"},
		AspectRatio: "1:1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"data:image/jpeg;base64,AAAA"}, res.Images)
	assert.Contains(t, res.Text, "here you go")

	require.Len(t, captured.Contents, 1)
	parts := captured.Contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "portrait", parts[0].Text)
	assert.Equal(t, "image/jpeg", parts[1].InlineData.MimeType)
	assert.Equal(t, "Zm9v", parts[1].InlineData.Data)
	assert.Equal(t, map[string]interface{}{"aspectRatio": "1:1"}, captured.GenerationConfig["imageConfig"])
}

func TestGeminiFencedJSONImage(t *testing.T) {
	srv, _ := geminiServer(t, http.StatusOK, textReply("```json\n{\"image_data\": \"QUJD REVG\"}\n```"))
	client := NewGeminiClient(srv.URL, "key-1", 5*time.Second)

	res, err := client.GenerateImage(context.Background(), ImageRequest{Model: "test-model"})
	require.NoError(t, err)
	assert.Equal(t, []string{"data:image/png;base64,QUJDREVG"}, res.Images)
}

func TestGeminiEmbeddedDataURI(t *testing.T) {
	long := strings.Repeat("A", 1200)
	srv, _ := geminiServer(t, http.StatusOK, textReply("Result: data:image/png;base64, "+long[:600]+"\n"+long[600:]+". done"))
	client := NewGeminiClient(srv.URL, "key-1", 5*time.Second)

	res, err := client.GenerateImage(context.Background(), ImageRequest{Model: "test-model"})
	require.NoError(t, err)
	require.Len(t, res.Images, 1)
	assert.Equal(t, "data:image/png;base64,"+long, res.Images[0])
}

func TestGeminiShortDataURIIgnored(t *testing.T) {
	srv, _ := geminiServer(t, http.StatusOK, textReply("see data:image/png;base64,AAAA"))
	client := NewGeminiClient(srv.URL, "key-1", 5*time.Second)

	res, err := client.GenerateImage(context.Background(), ImageRequest{Model: "test-model"})
	require.NoError(t, err)
	assert.Empty(t, res.Images)
	assert.Contains(t, res.Text, "see data:image")
}

func TestGeminiErrors(t *testing.T) {
	srv, _ := geminiServer(t, http.StatusTooManyRequests, `{"error":{"message":"quota"}}`)
	_, err := NewGeminiClient(srv.URL, "key-1", 5*time.Second).GenerateImage(context.Background(), ImageRequest{Model: "test-model"})
	assert.ErrorIs(t, err, ErrUpstreamRateLimited)

	srv, _ = geminiServer(t, http.StatusInternalServerError, `boom`)
	_, err = NewGeminiClient(srv.URL, "key-1", 5*time.Second).GenerateImage(context.Background(), ImageRequest{Model: "test-model"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUpstreamRateLimited)
	assert.Contains(t, err.Error(), "500")
}

func TestGeminiBlockedPrompt(t *testing.T) {
	srv, _ := geminiServer(t, http.StatusOK, `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`)
	res, err := NewGeminiClient(srv.URL, "key-1", 5*time.Second).GenerateImage(context.Background(), ImageRequest{Model: "test-model"})
	require.NoError(t, err)
	assert.Empty(t, res.Images)
	assert.Contains(t, res.Text, "SAFETY")
}
