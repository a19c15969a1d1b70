package soapy

// GainScale maps the orchestrator's 0–100 gain onto the 0–1 range SetGain
// spreads across the device's gain span.
const GainScale = 0.01

// NormalizeGain converts an orchestrator gain into the driver's scale.
func NormalizeGain(gain float64) float64 { return gain * GainScale }
