package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"peerlens/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestService_LoadedAgainstHTTPCollaborator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req domain.AnalysisRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(domain.AnalysisResult{
			FrameID:     req.FrameID,
			CaptureTs:   req.CaptureTs,
			RecvTs:      req.CaptureTs + 10,
			InferenceTs: req.CaptureTs + 25,
			Detections:  []domain.Detection{{Label: "person", Score: 0.87, Xmin: 0.1, Ymin: 0.2, Xmax: 0.4, Ymax: 0.9}},
		})
	}))
	defer srv.Close()

	svc := NewService(srv.URL, zaptest.NewLogger(t))
	require.Equal(t, StateLoaded, svc.State())

	result, err := svc.Analyze(context.Background(), domain.AnalysisRequest{
		Image:     []byte{0xff, 0xd8},
		CaptureTs: 1000,
		FrameID:   domain.FrameID(1000),
	})
	require.NoError(t, err)
	assert.Equal(t, "frame_1000", result.FrameID)
	require.Len(t, result.Detections, 1)
	assert.Equal(t, "person", result.Detections[0].Label)
}

func TestService_ErrorIsClassifiedAnalysis(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewService(srv.URL, zaptest.NewLogger(t))
	_, err := svc.Analyze(context.Background(), domain.AnalysisRequest{FrameID: "frame_1"})
	require.Error(t, err)
	assert.Equal(t, domain.ClassAnalysis, domain.ClassOf(err))
}

func TestService_FrameIDMismatchRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.AnalysisResult{FrameID: "frame_other"})
	}))
	defer srv.Close()

	svc := NewService(srv.URL, zaptest.NewLogger(t))
	_, err := svc.Analyze(context.Background(), domain.AnalysisRequest{FrameID: "frame_1"})
	assert.Error(t, err)
}

func TestService_MockFallback(t *testing.T) {
	svc := NewService("", zaptest.NewLogger(t))
	require.Equal(t, StateMockFallback, svc.State())

	result, err := svc.Analyze(context.Background(), domain.AnalysisRequest{
		CaptureTs: 5000,
		FrameID:   domain.FrameID(5000),
	})
	require.NoError(t, err)
	assert.Equal(t, "frame_5000", result.FrameID)
	assert.NotEmpty(t, result.Detections)

	// schema: timestamps ordered, boxes normalized
	assert.GreaterOrEqual(t, result.InferenceTs, result.RecvTs)
	for _, d := range result.Detections {
		assert.GreaterOrEqual(t, d.Xmin, 0.0)
		assert.LessOrEqual(t, d.Ymax, 1.0)
		assert.Less(t, d.Xmin, d.Xmax)
		assert.Less(t, d.Ymin, d.Ymax)
	}
}

func TestService_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := NewService(srv.URL, zaptest.NewLogger(t))
	for i := 0; i < 10; i++ {
		_, err := svc.Analyze(context.Background(), domain.AnalysisRequest{FrameID: "frame_1"})
		require.Error(t, err)
	}

	// breaker is open now; calls fail fast without reaching the server
	_, err := svc.Analyze(context.Background(), domain.AnalysisRequest{FrameID: "frame_1"})
	require.Error(t, err)
	assert.Equal(t, domain.ClassAnalysis, domain.ClassOf(err))
}
