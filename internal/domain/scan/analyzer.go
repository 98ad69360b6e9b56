package scan

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/retinacare/retina/internal/platform/blobstore"
)

// Result is what an analyzer reports for one image.
type Result struct {
	Severity            Severity
	Diagnosis           string
	Confidence          int
	ModelVersion        string
	InferenceMode       string
	PreprocessingMethod string
	InferenceTime       time.Duration
	// HeatmapRef points at the attention map stored for the image.
	HeatmapRef string
}

type Analyzer interface {
	Analyze(ctx context.Context, image blobstore.Metadata) (*Result, error)
}

// StubAnalyzer stands in for a real model. It never reports "none" and its
// heatmap is the original image.
type StubAnalyzer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewStubAnalyzer uses rnd for its choices; nil seeds from the clock.
func NewStubAnalyzer(rnd *rand.Rand) *StubAnalyzer {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	return &StubAnalyzer{rnd: rnd}
}

var stubSeverities = []Severity{SeverityMild, SeverityModerate, SeveritySevere}

func (a *StubAnalyzer) Analyze(ctx context.Context, image blobstore.Metadata) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	a.mu.Lock()
	severity := stubSeverities[a.rnd.IntN(len(stubSeverities))]
	confidence := 80 + a.rnd.IntN(20)
	a.mu.Unlock()

	return &Result{
		Severity:            severity,
		Diagnosis:           severity.Diagnosis(),
		Confidence:          confidence,
		ModelVersion:        "stub-v1",
		InferenceMode:       "stub",
		PreprocessingMethod: "none",
		InferenceTime:       time.Since(start),
		HeatmapRef:          image.Ref,
	}, nil
}
