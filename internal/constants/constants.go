// Package constants provides named constants used throughout the rbdc codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Built-in parameter set. These reproduce the canonical dataset emitted by
// `rbdc run` with no arguments.
const (
	// DefaultDose is the total mass the capsule releases over its lifetime.
	DefaultDose = 1.0

	// DefaultDecayRate is the capsule degradation constant k [1/s].
	// The release rate falls as dose·k·exp(-k·t).
	DefaultDecayRate = 0.1

	// DefaultDiffusionCoefficient is D [cm²/s] for a small chemokine in tissue.
	DefaultDiffusionCoefficient = 1e-6

	// DefaultReactionDecayRate is λ, the first-order consumption rate [1/s].
	DefaultReactionDecayRate = 0.0

	// DefaultActivationThreshold is the concentration at or above which
	// tissue counts as activated.
	DefaultActivationThreshold = 0.1

	// DefaultGridExtent is the radius of the simulated tissue volume [cm].
	DefaultGridExtent = 1.0

	// DefaultGridResolution is the cell spacing dx [cm].
	DefaultGridResolution = 0.01

	// DefaultDimensions is the spatial dimensionality of the domain.
	DefaultDimensions = 3

	// DefaultDuration is the simulated time span [s] of the built-in run.
	DefaultDuration = 1.0e6

	// DefaultRecordInterval is the spacing [s] between recorded samples.
	DefaultRecordInterval = 1.0e4
)

// Solver tuning constants
const (
	// StabilitySafetyFactor scales the explicit stability bound when the
	// timestep is chosen automatically.
	StabilitySafetyFactor = 0.9

	// ImplicitStepsPerRecord is the number of backward-Euler steps taken per
	// record interval when the timestep is chosen automatically.
	ImplicitStepsPerRecord = 10

	// CancelCheckInterval is how many solver steps pass between context checks.
	CancelCheckInterval = 256
)

// Hill response defaults carried over from the white-blood-cell response model.
const (
	// DefaultHillCoefficient is the cooperativity exponent n in c^n/(K^n+c^n).
	DefaultHillCoefficient = 2.0
)

// Sweep defaults
const (
	// DefaultSweepWorkers is used when neither config nor flags set a worker count.
	// Zero means runtime.GOMAXPROCS(0).
	DefaultSweepWorkers = 0

	// MaxSweepRuns bounds the number of combinations a sweep may expand to.
	MaxSweepRuns = 100000
)

// CSV export constants
const (
	// FloatPrecision is the number of mantissa digits written for every
	// numeric column of the exported dataset.
	FloatPrecision = 6
)
