package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockProvider is a mock gateway for testing.
// Simulates payment flows without calling the real gateway.
type MockProvider struct {
	mu sync.Mutex

	// CreateSourceFunc allows customizing source creation behavior.
	CreateSourceFunc func(ctx context.Context, params CreateSourceParams) (*Source, error)

	// GetStatusFunc allows customizing status lookup behavior.
	GetStatusFunc func(ctx context.Context, sourceID string) (SourceStatus, error)

	// Sources stores created sources for retrieval.
	Sources map[string]*Source

	// CallLog tracks method calls for test assertions.
	CallLog []string
}

// NewMockProvider creates a new mock gateway provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Sources: make(map[string]*Source),
	}
}

// CreateSource creates a mock payment source in pending state.
func (m *MockProvider) CreateSource(ctx context.Context, params CreateSourceParams) (*Source, error) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateSource(%d, %s)", params.AmountCents, params.Currency))
	m.mu.Unlock()

	if m.CreateSourceFunc != nil {
		return m.CreateSourceFunc(ctx, params)
	}

	if params.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	src := &Source{
		ID:          "src-" + uuid.New().String(),
		CheckoutURL: "https://checkout.test/" + uuid.New().String(),
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}

	m.mu.Lock()
	m.Sources[src.ID] = src
	m.mu.Unlock()
	return src, nil
}

// GetStatus returns the stored status of a mock source.
func (m *MockProvider) GetStatus(ctx context.Context, sourceID string) (SourceStatus, error) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("GetStatus(%s)", sourceID))
	m.mu.Unlock()

	if m.GetStatusFunc != nil {
		return m.GetStatusFunc(ctx, sourceID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	src, exists := m.Sources[sourceID]
	if !exists {
		return "", ErrSourceNotFound
	}
	return src.Status, nil
}

// VerifyNotification always verifies successfully on the mock.
func (m *MockProvider) VerifyNotification(n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = append(m.CallLog, "VerifyNotification")
	return nil
}

// SimulatePaid moves a mock source to paid status.
// Used in tests to simulate successful payment completion.
func (m *MockProvider) SimulatePaid(sourceID string) error {
	return m.simulate(sourceID, StatusPaid)
}

// SimulateFailed moves a mock source to failed status.
func (m *MockProvider) SimulateFailed(sourceID string) error {
	return m.simulate(sourceID, StatusFailed)
}

// SimulateExpired moves a mock source to expired status.
func (m *MockProvider) SimulateExpired(sourceID string) error {
	return m.simulate(sourceID, StatusExpired)
}

func (m *MockProvider) simulate(sourceID string, status SourceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, exists := m.Sources[sourceID]
	if !exists {
		return ErrSourceNotFound
	}
	src.Status = status
	return nil
}
