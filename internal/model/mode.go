package model

// Capability is an opaque tag granted by an execution mode
type Capability string

const (
	CapabilityDataAnalysis         Capability = "data_analysis"
	CapabilityWebScraping          Capability = "web_scraping"
	CapabilityRealTimeMonitoring   Capability = "real_time_monitoring"
	CapabilityPredictiveModeling   Capability = "predictive_modeling"
	CapabilityStrategyOptimization Capability = "strategy_optimization"
	CapabilityCrossDomainReasoning Capability = "cross_domain_reasoning"
)

// ModeStats holds rolling performance statistics for a mode.
// Each value is an exponentially updated float in [0,1].
type ModeStats struct {
	Accuracy    float64 `json:"accuracy"`
	Throughput  float64 `json:"throughput"`
	Reliability float64 `json:"reliability"`
}

// ExecutionMode represents a named capability profile gating which task
// types may run while the mode is current
type ExecutionMode struct {
	ID                    string       `json:"id"`
	Name                  string       `json:"name"`
	Capabilities          []Capability `json:"capabilities"`
	RequiredCollaborators []string     `json:"required_collaborators"`
	Active                bool         `json:"active"`
	Stats                 ModeStats    `json:"stats"`
}

// HasCapability reports whether the mode grants the given capability
func (m *ExecutionMode) HasCapability(c Capability) bool {
	for _, have := range m.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}
