// ABOUTME: Mock Client implementation for testing
// ABOUTME: Scripted event batches plus a recorded log of outbound sends

package remote

import (
	"context"
	"sync"
	"time"
)

// SentMessage records one outbound text message for assertions.
type SentMessage struct {
	Token  string
	ChatID int64
	Text   string
	Opts   *SendOptions
}

// SentDocument records one outbound document send for assertions.
type SentDocument struct {
	Token  string
	ChatID int64
	Doc    Document
}

// MockClient is an in-memory Client implementation for testing. Fetches pop
// scripted batches in order; sends are recorded and assigned increasing
// message ids. SendErr, when set, is returned by every send call.
type MockClient struct {
	mu        sync.Mutex
	batches   [][]Event
	fetchErrs []error
	messages  []SentMessage
	documents []SentDocument
	nextMsgID int64

	// SendErr is returned by SendMessage/SendDocument when non-nil.
	SendErr error
	// SendErrFor limits SendErr to a single chat id when non-zero.
	SendErrFor int64
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{nextMsgID: 1000}
}

// QueueBatch schedules a batch of events to be returned by a future fetch.
func (m *MockClient) QueueBatch(events ...Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, events)
}

// QueueError schedules a transport error to be returned by a future fetch,
// ahead of any queued batches.
func (m *MockClient) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErrs = append(m.fetchErrs, err)
}

// FetchEvents pops the next scripted error or batch. With nothing queued it
// returns an empty batch, like a poll that timed out.
func (m *MockClient) FetchEvents(ctx context.Context, token string, offset int64, timeout time.Duration) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.fetchErrs) > 0 {
		err := m.fetchErrs[0]
		m.fetchErrs = m.fetchErrs[1:]
		return nil, err
	}
	if len(m.batches) == 0 {
		return nil, nil
	}

	batch := m.batches[0]
	m.batches = m.batches[1:]

	// Honor the offset the way the platform does: skip already-acked events
	filtered := make([]Event, 0, len(batch))
	for _, ev := range batch {
		if ev.ID >= offset {
			filtered = append(filtered, ev)
		}
	}
	return filtered, nil
}

// SendMessage records the message and returns a fresh message id.
func (m *MockClient) SendMessage(ctx context.Context, token string, chatID int64, text string, opts *SendOptions) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendErr != nil && (m.SendErrFor == 0 || m.SendErrFor == chatID) {
		return 0, m.SendErr
	}

	m.nextMsgID++
	m.messages = append(m.messages, SentMessage{Token: token, ChatID: chatID, Text: text, Opts: opts})
	return m.nextMsgID, nil
}

// SendDocument records the document send.
func (m *MockClient) SendDocument(ctx context.Context, token string, chatID int64, doc Document, opts *SendOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendErr != nil && (m.SendErrFor == 0 || m.SendErrFor == chatID) {
		return m.SendErr
	}

	m.documents = append(m.documents, SentDocument{Token: token, ChatID: chatID, Doc: doc})
	return nil
}

// Messages returns a copy of all recorded text sends.
func (m *MockClient) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// Documents returns a copy of all recorded document sends.
func (m *MockClient) Documents() []SentDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentDocument, len(m.documents))
	copy(out, m.documents)
	return out
}

// LastMessage returns the most recent text send, or nil if none happened.
func (m *MockClient) LastMessage() *SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil
	}
	msg := m.messages[len(m.messages)-1]
	return &msg
}

// Reset clears recorded sends and scripted batches.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = nil
	m.fetchErrs = nil
	m.messages = nil
	m.documents = nil
}

// Ensure MockClient implements the Client interface
var _ Client = (*MockClient)(nil)
