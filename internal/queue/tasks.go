package queue

const (
	// TypeAssetRemove deletes a single canonical asset if nothing references it.
	TypeAssetRemove = "asset:remove"
	// TypeAssetSweep removes every unreferenced asset past the grace period.
	TypeAssetSweep = "asset:sweep"

	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"

	SweepCronSpec = "@every 1h"
)

// AssetRemovePayload is the body of a TypeAssetRemove task.
type AssetRemovePayload struct {
	Asset  string `json:"asset"`
	Reason string `json:"reason"`
}
