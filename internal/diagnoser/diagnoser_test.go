package diagnoser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/codereliant/pod-doctor/internal/inspector"
	"github.com/codereliant/pod-doctor/internal/llm"
	"github.com/codereliant/pod-doctor/internal/models"
)

// completionServer is a stub generation service that fails the first
// failures requests with failStatus, then serves a fixed completion.
func completionServer(t *testing.T, text string, failures int, failStatus int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var attempts atomic.Int32
	var prompts []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)

		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		prompts = append(prompts, req.Messages[1].Content)

		if int(n) <= failures {
			w.WriteHeader(failStatus)
			return
		}

		body := map[string]interface{}{
			"id":    "chatcmpl-test",
			"model": "gpt-4o-mini",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": text}},
			},
		}
		raw, _ := json.Marshal(body)
		w.Write(raw)
	}))
	t.Cleanup(server.Close)
	return server, &attempts
}

func buildDiagnoser(client *fake.Clientset, serverURL string) *Diagnoser {
	insp := inspector.New(client, inspector.Config{}, nil)
	llmClient := llm.NewClient(llm.Config{
		BaseURL:     serverURL,
		APIKey:      "sk-test",
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	}, nil)
	return New(insp, llmClient, nil, Config{}, nil)
}

func healthyPod() *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web-0", Namespace: "default"},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{
				{
					Name:  "app",
					State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{}},
				},
			},
		},
	}
}

func imagePullPod() *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web-0", Namespace: "default"},
		Status: corev1.PodStatus{
			Phase: corev1.PodPending,
			ContainerStatuses: []corev1.ContainerStatus{
				{
					Name:         "app",
					RestartCount: 2,
					State: corev1.ContainerState{
						Waiting: &corev1.ContainerStateWaiting{
							Reason:  "ImagePullBackOff",
							Message: `Back-off pulling image "registry/app:v2"`,
						},
					},
				},
			},
		},
	}
}

func TestRunningPodYieldsRecommendation(t *testing.T) {
	server, attempts := completionServer(t, "Pod looks healthy; check application-level metrics.", 0, 0)
	diag := buildDiagnoser(fake.NewSimpleClientset(healthyPod()), server.URL)

	result, err := diag.GetRecommendation(context.Background(),
		models.PodReference{Namespace: "default", PodName: "web-0"}, "")

	require.NoError(t, err)
	assert.NotEmpty(t, result.Recommendation.Text)
	assert.False(t, result.Cached)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestImagePullBackOffReachesPrompt(t *testing.T) {
	var seenPrompt atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seenPrompt.Store(req.Messages[1].Content)

		body := map[string]interface{}{
			"model": "gpt-4o-mini",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "Fix the image reference."}},
			},
		}
		raw, _ := json.Marshal(body)
		w.Write(raw)
	}))
	defer server.Close()

	diag := buildDiagnoser(fake.NewSimpleClientset(imagePullPod()), server.URL)

	_, err := diag.GetRecommendation(context.Background(),
		models.PodReference{Namespace: "default", PodName: "web-0"}, "")

	require.NoError(t, err)
	prompt, _ := seenPrompt.Load().(string)
	assert.Contains(t, prompt, "ImagePullBackOff")
}

func TestNotFoundSkipsGenerationService(t *testing.T) {
	server, attempts := completionServer(t, "should never be called", 0, 0)
	diag := buildDiagnoser(fake.NewSimpleClientset(), server.URL)

	_, err := diag.GetRecommendation(context.Background(),
		models.PodReference{Namespace: "default", PodName: "missing"}, "")

	require.Error(t, err)
	assert.ErrorIs(t, err, inspector.ErrPodNotFound)
	assert.Equal(t, int32(0), attempts.Load())
}

func TestRateLimitedRetriesThenSucceeds(t *testing.T) {
	server, attempts := completionServer(t, "Give it more memory.", 2, http.StatusTooManyRequests)
	diag := buildDiagnoser(fake.NewSimpleClientset(healthyPod()), server.URL)

	result, err := diag.GetRecommendation(context.Background(),
		models.PodReference{Namespace: "default", PodName: "web-0"}, "")

	require.NoError(t, err)
	assert.Equal(t, "Give it more memory.", result.Recommendation.Text)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestEmptyCompletionIsError(t *testing.T) {
	server, _ := completionServer(t, "   ", 0, 0)
	diag := buildDiagnoser(fake.NewSimpleClientset(healthyPod()), server.URL)

	_, err := diag.GetRecommendation(context.Background(),
		models.PodReference{Namespace: "default", PodName: "web-0"}, "")

	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

type stubCache struct {
	entries map[string]models.RecommendationResponse
	hits    int
	puts    int
}

func newStubCache() *stubCache {
	return &stubCache{entries: map[string]models.RecommendationResponse{}}
}

func (s *stubCache) Get(_ context.Context, prompt string) (models.RecommendationResponse, bool) {
	rec, ok := s.entries[prompt]
	if ok {
		s.hits++
	}
	return rec, ok
}

func (s *stubCache) Put(_ context.Context, prompt string, rec models.RecommendationResponse) {
	s.puts++
	s.entries[prompt] = rec
}

func TestCacheHitSkipsGenerationService(t *testing.T) {
	server, attempts := completionServer(t, "Roll back the deployment.", 0, 0)
	client := fake.NewSimpleClientset(healthyPod())
	insp := inspector.New(client, inspector.Config{}, nil)
	llmClient := llm.NewClient(llm.Config{
		BaseURL:     server.URL,
		APIKey:      "sk-test",
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	}, nil)
	cache := newStubCache()
	diag := New(insp, llmClient, cache, Config{}, nil)

	ref := models.PodReference{Namespace: "default", PodName: "web-0"}

	first, err := diag.GetRecommendation(context.Background(), ref, "")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, cache.puts)

	second, err := diag.GetRecommendation(context.Background(), ref, "")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Recommendation, second.Recommendation)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestOutcomeClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"not found", inspector.ErrPodNotFound, "not_found"},
		{"forbidden", inspector.ErrForbidden, "auth_error"},
		{"llm auth", llm.ErrAuth, "auth_error"},
		{"timeout", inspector.ErrTimeout, "timeout"},
		{"cancelled", context.Canceled, "timeout"},
		{"rate limited", llm.ErrRateLimited, "rate_limited"},
		{"unavailable", llm.ErrServiceUnavailable, "unavailable"},
		{"empty", llm.ErrEmptyResponse, "bad_response"},
		{"other", assert.AnError, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, outcome(tt.err))
		})
	}
}
