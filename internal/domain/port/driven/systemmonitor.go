package driven

import "github.com/xiaocang/ghpr-view/internal/domain/model"

// SystemMonitor defines the driven port for host power and network-cost
// conditions. The scheduler subscribes to pause and resume polling.
type SystemMonitor interface {
	// Current returns the present system state.
	Current() model.SystemState

	// Subscribe registers fn to be called whenever the state changes.
	Subscribe(fn func(model.SystemState))
}
