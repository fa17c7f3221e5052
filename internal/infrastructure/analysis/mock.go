package analysis

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"peerlens/internal/core/domain"
)

var mockLabels = []string{"person", "chair", "bottle", "laptop"}

// MockAnalyzer produces schema-valid detections with synthetic timing when
// no real analysis collaborator is reachable. Detection content is
// placeholder data; only the schema and timestamp ordering are meaningful.
type MockAnalyzer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewMockAnalyzer() *MockAnalyzer {
	return &MockAnalyzer{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (m *MockAnalyzer) Analyze(_ context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recv := time.Now().UnixMilli()
	inference := recv + int64(m.rnd.Intn(30)+5)

	detections := make([]domain.Detection, 0, 2)
	for i := 0; i < 1+m.rnd.Intn(2); i++ {
		x := m.rnd.Float64() * 0.6
		y := m.rnd.Float64() * 0.6
		detections = append(detections, domain.Detection{
			Label: mockLabels[m.rnd.Intn(len(mockLabels))],
			Score: 0.5 + m.rnd.Float64()*0.5,
			Xmin:  x,
			Ymin:  y,
			Xmax:  x + 0.1 + m.rnd.Float64()*0.3,
			Ymax:  y + 0.1 + m.rnd.Float64()*0.3,
		})
	}

	return domain.AnalysisResult{
		FrameID:     req.FrameID,
		CaptureTs:   req.CaptureTs,
		RecvTs:      recv,
		InferenceTs: inference,
		Detections:  detections,
	}, nil
}
