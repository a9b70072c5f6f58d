package stream

import (
	"context"
	"sync"
	"time"

	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
)

// memoryStreamInfo is one in-flight or recently-completed stream's state.
type memoryStreamInfo struct {
	sessionID           string
	requestID           string
	query               string
	content             string
	knowledgeReferences []types.RetrieveItem
	lastUpdated         time.Time
	isCompleted         bool
}

// MemoryStreamManager is a single-process StreamManager, suitable when
// only one replica serves chat traffic; RedisStreamManager is the
// cross-replica alternative.
type MemoryStreamManager struct {
	// sessionID -> requestID -> stream state
	activeStreams map[string]map[string]*memoryStreamInfo
	mu            sync.RWMutex
}

func NewMemoryStreamManager() *MemoryStreamManager {
	return &MemoryStreamManager{
		activeStreams: make(map[string]map[string]*memoryStreamInfo),
	}
}

func (m *MemoryStreamManager) RegisterStream(ctx context.Context, sessionID, requestID, query string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := &memoryStreamInfo{
		sessionID:   sessionID,
		requestID:   requestID,
		query:       query,
		lastUpdated: time.Now(),
	}

	if _, exists := m.activeStreams[sessionID]; !exists {
		m.activeStreams[sessionID] = make(map[string]*memoryStreamInfo)
	}

	m.activeStreams[sessionID][requestID] = info
	return nil
}

func (m *MemoryStreamManager) UpdateStream(ctx context.Context,
	sessionID, requestID string, content string, references []types.RetrieveItem,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionMap, exists := m.activeStreams[sessionID]; exists {
		if stream, found := sessionMap[requestID]; found {
			stream.content += content
			if len(references) > 0 {
				stream.knowledgeReferences = references
			}
			stream.lastUpdated = time.Now()
		}
	}
	return nil
}

func (m *MemoryStreamManager) CompleteStream(ctx context.Context, sessionID, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionMap, exists := m.activeStreams[sessionID]; exists {
		if stream, found := sessionMap[requestID]; found {
			stream.isCompleted = true
			// Evict the stream 30s after completion to give a disconnected
			// client time to reconnect and read the final state.
			go func() {
				time.Sleep(30 * time.Second)
				m.mu.Lock()
				defer m.mu.Unlock()
				delete(sessionMap, requestID)
				if len(sessionMap) == 0 {
					delete(m.activeStreams, sessionID)
				}
			}()
		}
	}
	return nil
}

func (m *MemoryStreamManager) GetStream(ctx context.Context,
	sessionID, requestID string,
) (*interfaces.StreamInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if sessionMap, exists := m.activeStreams[sessionID]; exists {
		if stream, found := sessionMap[requestID]; found {
			return &interfaces.StreamInfo{
				SessionID:           stream.sessionID,
				RequestID:           stream.requestID,
				Query:               stream.query,
				Content:             stream.content,
				KnowledgeReferences: stream.knowledgeReferences,
				LastUpdated:         stream.lastUpdated,
				IsCompleted:         stream.isCompleted,
			}, nil
		}
	}
	return nil, nil
}

var _ interfaces.StreamManager = (*MemoryStreamManager)(nil)
