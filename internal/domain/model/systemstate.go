package model

// SystemState reports host conditions that can pause polling.
type SystemState struct {
	LowPower         bool `json:"lowPower"`
	ExpensiveNetwork bool `json:"expensiveNetwork"`
}
