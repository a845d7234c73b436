package api

import (
	"math"
	"net/http"
	"time"

	domain "permtest/domain/permutation"
	"permtest/internal"
	"permtest/internal/config"
	"permtest/internal/errors"
	"permtest/internal/permutation"

	"github.com/gin-gonic/gin"
)

// Handler serves permutation tests and precision estimates over HTTP
type Handler struct {
	engine   *permutation.Engine
	defaults config.EngineConfig
	logger   *internal.Logger
}

// NewHandler creates a new API handler
func NewHandler(engine *permutation.Engine, defaults config.EngineConfig, logger *internal.Logger) *Handler {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Handler{engine: engine, defaults: defaults, logger: logger}
}

// Register mounts the API routes
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	v1 := r.Group("/api/v1")
	v1.POST("/permutation-test", h.PermutationTest)
	v1.POST("/precision", h.Precision)
}

// TestRequest is the body of POST /api/v1/permutation-test.
// null entries in the samples are missing values.
type TestRequest struct {
	Sample1      []*float64 `json:"sample1" binding:"required"`
	Sample2      []*float64 `json:"sample2" binding:"required"`
	Permutations *int       `json:"permutations"`
	Sidedness    string     `json:"sidedness"`
	Exact        bool       `json:"exact"`
	Seed         int64      `json:"seed"`
	IncludeNull  bool       `json:"include_null"`
}

// SummaryResponse describes the null distribution
type SummaryResponse struct {
	Mean   *float64 `json:"mean"`
	StdDev *float64 `json:"std_dev"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	P025   *float64 `json:"p2_5"`
	P975   *float64 `json:"p97_5"`
}

// TestResponse is the result of a permutation test. Non-finite numbers are null.
type TestResponse struct {
	RunID              string              `json:"run_id"`
	PValue             float64             `json:"p_value"`
	ObservedDifference *float64            `json:"observed_difference"`
	EffectSize         *float64            `json:"effect_size"`
	PooledStdDev       *float64            `json:"pooled_std_dev"`
	Sidedness          string              `json:"sidedness"`
	Exact              bool                `json:"exact"`
	EffectiveCount     int                 `json:"effective_count"`
	Summary            SummaryResponse     `json:"summary"`
	Diagnostics        []domain.Diagnostic `json:"diagnostics"`
	NullDistribution   []*float64          `json:"null_distribution,omitempty"`
	ElapsedMillis      float64             `json:"elapsed_ms"`
}

// PrecisionRequest is the body of POST /api/v1/precision
type PrecisionRequest struct {
	Precision float64 `json:"precision" binding:"required"`
	Alpha     float64 `json:"alpha" binding:"required"`
	Level     int     `json:"level" binding:"required"`
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PermutationTest runs a permutation test on the posted samples
func (h *Handler) PermutationTest(c *gin.Context) {
	var req TestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, errors.Wrap(errors.InvalidInput(err.Error()), "invalid request body"))
		return
	}

	sidedness, err := domain.ParseSidedness(req.Sidedness)
	if err != nil {
		h.writeError(c, err)
		return
	}

	permutations := h.defaults.Permutations
	if req.Permutations != nil {
		permutations = *req.Permutations
	}
	seed := req.Seed
	if seed == 0 {
		seed = h.defaults.Seed
	}

	opts := domain.Options{
		Sidedness: sidedness,
		Exact:     req.Exact,
		Seed:      seed,
	}

	start := time.Now()
	result, err := h.engine.Run(c.Request.Context(), toSample(req.Sample1), toSample(req.Sample2), permutations, opts)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := NewTestResponse(result, req.IncludeNull)
	resp.ElapsedMillis = float64(time.Since(start).Nanoseconds()) / 1e6

	h.logger.Info("[API] run %s: n1=%d n2=%d count=%d p=%.4g in %.1fms",
		result.RunID, len(req.Sample1), len(req.Sample2), result.EffectiveCount, result.PValue, resp.ElapsedMillis)
	c.JSON(http.StatusOK, resp)
}

// Precision estimates the permutations needed for a target p-value precision
func (h *Handler) Precision(c *gin.Context) {
	var req PrecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, errors.Wrap(errors.InvalidInput(err.Error()), "invalid request body"))
		return
	}

	n, err := permutation.EstimatePermutations(req.Precision, req.Alpha, req.Level)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"permutations": n})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeInvalidArgument, errors.CodeInvalidInput:
		status = http.StatusBadRequest
	case errors.CodeCancelled:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("[API] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "code": code})
}

// NewTestResponse shapes a result for JSON output
func NewTestResponse(result *domain.Result, includeNull bool) TestResponse {
	resp := TestResponse{
		RunID:              result.RunID,
		PValue:             result.PValue,
		ObservedDifference: finite(result.ObservedDifference),
		EffectSize:         finite(result.EffectSize),
		PooledStdDev:       finite(result.PooledStdDev),
		Sidedness:          string(result.Sidedness),
		Exact:              result.Exact,
		EffectiveCount:     result.EffectiveCount,
		Summary: SummaryResponse{
			Mean:   finite(result.Summary.Mean),
			StdDev: finite(result.Summary.StdDev),
			Min:    finite(result.Summary.Min),
			Max:    finite(result.Summary.Max),
			P025:   finite(result.Summary.P025),
			P975:   finite(result.Summary.P975),
		},
		Diagnostics: result.Diagnostics,
	}
	if resp.Diagnostics == nil {
		resp.Diagnostics = []domain.Diagnostic{}
	}
	if includeNull {
		resp.NullDistribution = make([]*float64, len(result.NullDistribution))
		for i, v := range result.NullDistribution {
			resp.NullDistribution[i] = finite(v)
		}
	}
	return resp
}

func toSample(values []*float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	return out
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
