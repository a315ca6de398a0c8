package embedding

import (
	"context"
	"crypto/sha256"
	"math"
	"sync"

	"github.com/catuchi/LawMadeSimple-sub002/internal/vector"
)

// MockProvider is a deterministic provider for tests and offline development. The same text
// always gets the same unit vector. Failures can be injected with FailWith.
type MockProvider struct {
	dimensions int

	mu    sync.Mutex
	calls [][]string
	fail  func(texts []string) error
}

// NewMockProvider returns a provider producing vectors of the given dimensions.
func NewMockProvider(dimensions int) *MockProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockProvider{dimensions: dimensions}
}

// FailWith makes every call for which fn returns an error fail with that error.
func (m *MockProvider) FailWith(fn func(texts []string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fn
}

// Calls returns the texts of every call made so far.
func (m *MockProvider) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CreateEmbeddings returns one hash-derived vector per text.
func (m *MockProvider) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), texts...))
	fail := m.fail
	m.mu.Unlock()

	if fail != nil {
		if err := fail(texts); err != nil {
			return nil, err
		}
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = MockVector(text, m.dimensions)
	}
	return out, nil
}

// MockVector derives a unit vector from the SHA-256 digest of text.
func MockVector(text string, dimensions int) []float32 {
	sum := sha256.Sum256([]byte(text))
	emb := make([]float32, dimensions)
	for i := range emb {
		b := float64(sum[i%len(sum)]) + float64(sum[(i+13)%len(sum)])/256
		emb[i] = float32(math.Sin(b*float64(i+1))*0.1 + 0.01)
	}
	vector.NormalizeL2(emb)
	return emb
}

// Name returns the provider name.
func (m *MockProvider) Name() string {
	return ProviderMock
}

// Close is a no-op.
func (m *MockProvider) Close() error {
	return nil
}
