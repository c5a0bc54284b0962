package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/inpaint-relay/internal/prediction"
	"github.com/maauso/inpaint-relay/internal/replicate"
)

// fakeReplicate is an httptest-backed prediction provider that replays a
// scripted status sequence for every prediction it creates.
type fakeReplicate struct {
	t        *testing.T
	server   *httptest.Server
	statuses []string
	output   []string
	noURL    bool

	submits atomic.Int32
	polls   atomic.Int32

	mu     sync.Mutex
	cursor map[string]int
}

func newFakeReplicate(t *testing.T, statuses ...string) *fakeReplicate {
	t.Helper()
	f := &fakeReplicate{
		t:        t,
		statuses: statuses,
		output:   []string{"http://x/img.png"},
		cursor:   make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /predictions", f.create)
	mux.HandleFunc("GET /predictions/{id}", f.get)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeReplicate) create(w http.ResponseWriter, r *http.Request) {
	n := f.submits.Add(1)
	id := fmt.Sprintf("p%d", n)
	resp := map[string]any{"id": id, "status": "starting", "urls": map[string]string{}}
	if !f.noURL {
		resp["urls"] = map[string]string{"get": f.server.URL + "/predictions/" + id}
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeReplicate) get(w http.ResponseWriter, r *http.Request) {
	f.polls.Add(1)
	id := r.PathValue("id")

	f.mu.Lock()
	i := f.cursor[id]
	if i < len(f.statuses)-1 {
		f.cursor[id] = i + 1
	}
	status := f.statuses[i]
	f.mu.Unlock()

	resp := map[string]any{"id": id, "status": status}
	switch status {
	case "succeeded":
		resp["output"] = f.output
	case "failed":
		resp["error"] = "model crashed"
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(f *fakeReplicate, opts ...ServiceOption) *Service {
	client := replicate.NewClient(replicate.WithBaseURL(f.server.URL))
	base := []ServiceOption{
		WithPollerOptions(prediction.WithInterval(time.Millisecond), prediction.WithMaxAttempts(20)),
	}
	return NewService(client, testLogger(), append(base, opts...)...)
}

func validRequest() Request {
	return Request{
		Credential:   "r8_abcdef123456",
		ModelVersion: "v-123",
		Prompt:       "a rider on a desert track",
		ImageURL:     "http://x/src.png",
		Mask:         "http://x/mask.png",
		Creativity:   DefaultCreativity,
	}
}

func TestGenerate_Succeeds(t *testing.T) {
	f := newFakeReplicate(t, "starting", "processing", "succeeded")
	svc := newTestService(f)

	res, err := svc.Generate(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, "http://x/img.png", res.ImageURL)
	assert.Equal(t, "p1", res.PredictionID)
	assert.Equal(t, 3, res.Attempts)
	assert.False(t, res.Mirrored)
	assert.Equal(t, int32(1), f.submits.Load())
	assert.Equal(t, int32(3), f.polls.Load())
}

func TestGenerate_CreativityOutOfRange(t *testing.T) {
	for _, c := range []float64{-0.01, 1.01, 5, -3} {
		t.Run(fmt.Sprint(c), func(t *testing.T) {
			f := newFakeReplicate(t, "succeeded")
			req := validRequest()
			req.Creativity = c

			_, err := newTestService(f).Generate(context.Background(), req)

			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.Equal(t, msgCreativityRange, MessageOf(err))
			assert.Zero(t, f.submits.Load())
			assert.Zero(t, f.polls.Load())
		})
	}
}

func TestGenerate_CreativityBounds(t *testing.T) {
	for _, c := range []float64{0, 1} {
		f := newFakeReplicate(t, "succeeded")
		req := validRequest()
		req.Creativity = c

		_, err := newTestService(f).Generate(context.Background(), req)
		assert.NoError(t, err)
	}
}

func TestGenerate_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Request)
		field   string
		message string
	}{
		{"token", func(r *Request) { r.Credential = "" }, "replicate_token", msgMissingToken},
		{"model", func(r *Request) { r.ModelVersion = "  " }, "model_version", msgMissingModel},
		{"prompt", func(r *Request) { r.Prompt = "" }, "prompt", msgMissingPrompt},
		{"image", func(r *Request) { r.ImageURL = "" }, "image_url", msgMissingImageURL},
		{"mask", func(r *Request) { r.Mask = "\t" }, "mask", msgMissingMask},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeReplicate(t, "succeeded")
			req := validRequest()
			tt.mutate(&req)

			_, err := newTestService(f).Generate(context.Background(), req)

			var gerr *Error
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, KindValidation, gerr.Kind)
			assert.Equal(t, tt.field, gerr.Field)
			assert.Equal(t, tt.message, gerr.Message)
			assert.Zero(t, f.submits.Load())
		})
	}
}

func TestGenerate_CreativityCheckedFirst(t *testing.T) {
	f := newFakeReplicate(t, "succeeded")
	req := validRequest()
	req.Creativity = 2
	req.Prompt = ""

	_, err := newTestService(f).Generate(context.Background(), req)

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "creativity", gerr.Field)
}

func TestGenerate_NoTrackingURL(t *testing.T) {
	f := newFakeReplicate(t, "succeeded")
	f.noURL = true

	_, err := newTestService(f).Generate(context.Background(), validRequest())

	require.Error(t, err)
	assert.Equal(t, KindSubmission, KindOf(err))
	assert.Equal(t, msgNoTrackingURL, MessageOf(err))
	assert.ErrorIs(t, err, replicate.ErrNoTrackingURL)
	assert.Equal(t, int32(1), f.submits.Load())
	assert.Zero(t, f.polls.Load())
}

func TestGenerate_ProviderUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := replicate.NewClient(replicate.WithBaseURL(url))
	_, err := NewService(client, testLogger()).Generate(context.Background(), validRequest())

	assert.Equal(t, KindSubmission, KindOf(err))
	assert.ErrorIs(t, err, replicate.ErrProviderUnavailable)
}

func TestGenerate_JobFailed(t *testing.T) {
	f := newFakeReplicate(t, "starting", "failed", "succeeded")

	_, err := newTestService(f).Generate(context.Background(), validRequest())

	assert.Equal(t, KindJobFailed, KindOf(err))
	assert.Equal(t, msgJobFailed, MessageOf(err))
	assert.Equal(t, int32(2), f.polls.Load())
}

func TestGenerate_JobCanceled(t *testing.T) {
	f := newFakeReplicate(t, "processing", "canceled")

	_, err := newTestService(f).Generate(context.Background(), validRequest())

	assert.Equal(t, KindJobCanceled, KindOf(err))
	assert.Equal(t, int32(2), f.polls.Load())
}

func TestGenerate_Timeout(t *testing.T) {
	f := newFakeReplicate(t, "processing")

	_, err := newTestService(f).Generate(context.Background(), validRequest())

	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, msgTimeout, MessageOf(err))
	assert.Equal(t, int32(20), f.polls.Load())
}

func TestGenerate_UnrecognizedStatus(t *testing.T) {
	f := newFakeReplicate(t, "starting", "exploded")

	_, err := newTestService(f, WithPollerOptions(prediction.WithUnknownStatusGrace(3))).
		Generate(context.Background(), validRequest())

	assert.Equal(t, KindJobFailed, KindOf(err))
	assert.ErrorIs(t, err, prediction.ErrUnexpectedStatus)
}

func TestGenerate_CallerCancels(t *testing.T) {
	f := newFakeReplicate(t, "processing")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	svc := newTestService(f, WithPollerOptions(
		prediction.WithInterval(5*time.Millisecond),
		prediction.WithMaxAttempts(100000),
	))

	// The caller's deadline is shorter than the poll deadline; either way
	// polling ends instead of hanging.
	_, err := svc.Generate(ctx, validRequest())
	require.Error(t, err)
	assert.Contains(t, []Kind{KindTimeout, KindAborted}, KindOf(err))
}

func TestGenerate_ExplicitCancel(t *testing.T) {
	f := newFakeReplicate(t, "processing")
	ctx, cancel := context.WithCancel(context.Background())

	svc := newTestService(f, WithPollerOptions(
		prediction.WithInterval(5*time.Millisecond),
		prediction.WithMaxAttempts(100000),
		prediction.WithObserver(func(j *prediction.Job) {
			if j.Attempts == 2 {
				cancel()
			}
		}),
	))

	_, err := svc.Generate(ctx, validRequest())
	assert.Equal(t, KindAborted, KindOf(err))
}

func TestGenerate_TwoIndependentJobs(t *testing.T) {
	f := newFakeReplicate(t, "starting", "succeeded")
	svc := newTestService(f)

	first, err := svc.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	second, err := svc.Generate(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.submits.Load())
	assert.NotEqual(t, first.PredictionID, second.PredictionID)
	assert.Equal(t, int32(4), f.polls.Load())
}

// mockMirror implements Mirror for testing.
type mockMirror struct {
	mock.Mock
}

func (m *mockMirror) Mirror(ctx context.Context, predictionID, sourceURL string) (string, error) {
	args := m.Called(ctx, predictionID, sourceURL)
	return args.String(0), args.Error(1)
}

func TestGenerate_Mirrored(t *testing.T) {
	f := newFakeReplicate(t, "succeeded")
	m := &mockMirror{}
	m.On("Mirror", mock.Anything, "p1", "http://x/img.png").
		Return("https://bucket.s3.us-east-1.amazonaws.com/generations/p1/img.png", nil)

	res, err := newTestService(f, WithMirror(m)).Generate(context.Background(), validRequest())

	require.NoError(t, err)
	assert.True(t, res.Mirrored)
	assert.Equal(t, "https://bucket.s3.us-east-1.amazonaws.com/generations/p1/img.png", res.ImageURL)
	assert.Equal(t, "http://x/img.png", res.SourceURL)
	m.AssertExpectations(t)
}

func TestGenerate_MirrorFailureFallsBack(t *testing.T) {
	f := newFakeReplicate(t, "succeeded")
	m := &mockMirror{}
	m.On("Mirror", mock.Anything, "p1", "http://x/img.png").Return("", errors.New("s3 down"))

	res, err := newTestService(f, WithMirror(m)).Generate(context.Background(), validRequest())

	require.NoError(t, err)
	assert.False(t, res.Mirrored)
	assert.Equal(t, "http://x/img.png", res.ImageURL)
}

// mockRecorder implements Recorder for testing.
type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordGeneration(outcome string, duration time.Duration, attempts int) {
	m.Called(outcome, attempts)
}

func (m *mockRecorder) RecordStatus(status string) {
	m.Called(status)
}

func TestGenerate_RecordsMetrics(t *testing.T) {
	f := newFakeReplicate(t, "starting", "succeeded")
	rec := &mockRecorder{}
	rec.On("RecordStatus", "starting").Once()
	rec.On("RecordStatus", "succeeded").Once()
	rec.On("RecordGeneration", "succeeded", 2).Once()

	_, err := newTestService(f, WithRecorder(rec)).Generate(context.Background(), validRequest())

	require.NoError(t, err)
	rec.AssertExpectations(t)
}

func TestGenerate_RecordsValidationOutcome(t *testing.T) {
	f := newFakeReplicate(t, "succeeded")
	rec := &mockRecorder{}
	rec.On("RecordGeneration", "validation", 0).Once()

	req := validRequest()
	req.Mask = ""
	_, err := newTestService(f, WithRecorder(rec)).Generate(context.Background(), req)

	require.Error(t, err)
	rec.AssertExpectations(t)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "****", maskToken("abc"))
	assert.Equal(t, "****3456", maskToken("r8_abcdef123456"))
}

func TestMessageOf_PlainError(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, KindUnexpected, KindOf(err))
	assert.Equal(t, "Error en el backend: boom", MessageOf(err))
}
