package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"peerlens/internal/core/domain"
	"peerlens/internal/core/ports"
	"peerlens/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// State is the tagged analyzer variant, so callers branch exhaustively
// instead of duck-typing a session handle.
type State int

const (
	StateUninitialized State = iota
	StateLoaded
	StateMockFallback
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoaded:
		return "loaded"
	case StateMockFallback:
		return "mock-fallback"
	default:
		return "unknown"
	}
}

// Service fronts the analysis collaborator. With an endpoint configured it
// speaks HTTP behind a circuit breaker; without one it degrades to the mock
// analyzer. All failures come back classified as analysis errors, which the
// pipeline treats as soft.
type Service struct {
	state   State
	client  *httpClient
	mock    *MockAnalyzer
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

func NewService(endpoint string, logger *zap.Logger) *Service {
	s := &Service{
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:  logger.Sugar(),
	}
	if endpoint == "" {
		s.state = StateMockFallback
		s.mock = NewMockAnalyzer()
		s.logger.Warnw("no analyzer endpoint configured, using mock fallback")
		return s
	}
	s.state = StateLoaded
	s.client = newHTTPClient(endpoint)
	return s
}

// State reports which analyzer variant is active.
func (s *Service) State() State {
	return s.state
}

// Analyze implements ports.Analyzer.
func (s *Service) Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	switch s.state {
	case StateLoaded:
		if !s.breaker.Allow() {
			return domain.AnalysisResult{}, domain.NewAnalysisError(circuitbreaker.ErrOpen)
		}
		result, err := s.client.analyze(ctx, req)
		if err != nil {
			s.breaker.RecordFailure()
			return domain.AnalysisResult{}, domain.NewAnalysisError(err)
		}
		s.breaker.RecordSuccess()
		return result, nil

	case StateMockFallback:
		return s.mock.Analyze(ctx, req)

	default:
		return domain.AnalysisResult{}, domain.NewAnalysisError(fmt.Errorf("analyzer not initialized"))
	}
}

var _ ports.Analyzer = (*Service)(nil)

// httpClient speaks the analysis collaborator's request/response schema.
type httpClient struct {
	endpoint string
	http     *http.Client
}

func newHTTPClient(endpoint string) *httpClient {
	return &httpClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *httpClient) analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("analysis call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.AnalysisResult{}, fmt.Errorf("analysis returned status %d", resp.StatusCode)
	}

	var result domain.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("decode response: %w", err)
	}
	if result.FrameID != req.FrameID {
		return domain.AnalysisResult{}, fmt.Errorf("response frame_id %q does not match request %q", result.FrameID, req.FrameID)
	}
	return result, nil
}
