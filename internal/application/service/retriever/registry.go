package retriever

import (
	"fmt"
	"sync"

	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
)

// engineRegistry implements interfaces.RetrieveEngineRegistry.
type engineRegistry struct {
	engines map[types.RetrieverEngineType]interfaces.RetrieveEngine
	mu      sync.RWMutex
}

// NewRetrieveEngineRegistry creates a new retrieval engine registry.
func NewRetrieveEngineRegistry() interfaces.RetrieveEngineRegistry {
	return &engineRegistry{
		engines: make(map[types.RetrieverEngineType]interfaces.RetrieveEngine),
	}
}

func (r *engineRegistry) Register(engine interfaces.RetrieveEngine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.engines[engine.EngineType()]; exists {
		return fmt.Errorf("retrieve engine %s already registered", engine.EngineType())
	}
	r.engines[engine.EngineType()] = engine
	return nil
}

func (r *engineRegistry) GetRetrieveEngineService(
	engineType types.RetrieverEngineType,
) (interfaces.RetrieveEngine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, exists := r.engines[engineType]
	if !exists {
		return nil, fmt.Errorf("retrieve engine %s not registered", engineType)
	}
	return engine, nil
}

func (r *engineRegistry) GetAllRetrieveEngineServices() []interfaces.RetrieveEngine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]interfaces.RetrieveEngine, 0, len(r.engines))
	for _, engine := range r.engines {
		result = append(result, engine)
	}
	return result
}
