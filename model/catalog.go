package model

// Well-known metric names reported by the game host.
const (
	MetricFrameRate      = "frameRate"
	MetricRenderTime     = "renderTime"
	MetricMemoryUsage    = "memoryUsage"
	MetricMemoryGrowth   = "memoryGrowth"
	MetricNetworkLatency = "networkLatency"
	MetricInputLag       = "inputLag"
	MetricGoroutines     = "goroutines"
	MetricGCPause        = "gcPause"
	MetricResidentMemory = "residentMemory"
)

// Bottleneck types.
const (
	TypeFrameRate   = "frame_rate"
	TypeRendering   = "rendering"
	TypeMemory      = "memory"
	TypeNetwork     = "network"
	TypeInteraction = "interaction"
	TypeComputation = "computation"
)

// MetricInfo describes how to label and classify a metric.
type MetricInfo struct {
	Name      string
	Unit      string // "fps", "ms", "bytes", "bytes/s", "count"
	Type      string
	Component string
}

var catalog = map[string]MetricInfo{
	MetricFrameRate:      {MetricFrameRate, "fps", TypeFrameRate, "rendering_pipeline"},
	MetricRenderTime:     {MetricRenderTime, "ms", TypeRendering, "renderer"},
	MetricMemoryUsage:    {MetricMemoryUsage, "bytes", TypeMemory, "memory_manager"},
	MetricMemoryGrowth:   {MetricMemoryGrowth, "bytes/s", TypeMemory, "memory_manager"},
	MetricResidentMemory: {MetricResidentMemory, "bytes", TypeMemory, "memory_manager"},
	MetricNetworkLatency: {MetricNetworkLatency, "ms", TypeNetwork, "network_stack"},
	MetricInputLag:       {MetricInputLag, "ms", TypeInteraction, "input_pipeline"},
	MetricGoroutines:     {MetricGoroutines, "count", TypeComputation, "runtime"},
	MetricGCPause:        {MetricGCPause, "ms", TypeMemory, "garbage_collector"},
}

// LookupMetric returns catalogue info for name. Unknown metrics are
// classified as computation bottlenecks in the runtime component.
func LookupMetric(name string) MetricInfo {
	if info, ok := catalog[name]; ok {
		return info
	}
	return MetricInfo{Name: name, Type: TypeComputation, Component: "runtime"}
}
