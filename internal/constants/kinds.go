package constants

// Boundary selects the condition applied at the outer edge of the domain.
type Boundary string

const (
	// BoundaryReflecting is a zero-flux edge: mass never leaves the tissue volume.
	BoundaryReflecting Boundary = "reflecting"

	// BoundaryAbsorbing holds the concentration at zero just beyond the edge.
	BoundaryAbsorbing Boundary = "absorbing"
)

// Valid returns true if the boundary is a recognized value.
func (b Boundary) Valid() bool {
	switch b {
	case BoundaryReflecting, BoundaryAbsorbing:
		return true
	}
	return false
}

// String returns the string representation of the boundary.
func (b Boundary) String() string {
	return string(b)
}

// Geometry selects how the spatial domain is discretized.
type Geometry string

const (
	// GeometryRadial uses concentric shells around a point source.
	GeometryRadial Geometry = "radial"

	// GeometryCartesian uses a regular N-D grid with the source in the centre cell.
	GeometryCartesian Geometry = "cartesian"
)

// Valid returns true if the geometry is a recognized value.
func (g Geometry) Valid() bool {
	switch g {
	case GeometryRadial, GeometryCartesian:
		return true
	}
	return false
}

// String returns the string representation of the geometry.
func (g Geometry) String() string {
	return string(g)
}

// Scheme selects the time integration method of the field solver.
type Scheme string

const (
	// SchemeExplicit is forward Euler, subject to the stability bound.
	SchemeExplicit Scheme = "explicit"

	// SchemeImplicit is backward Euler, unconditionally stable.
	SchemeImplicit Scheme = "implicit"
)

// Valid returns true if the scheme is a recognized value.
func (s Scheme) Valid() bool {
	switch s {
	case SchemeExplicit, SchemeImplicit:
		return true
	}
	return false
}

// String returns the string representation of the scheme.
func (s Scheme) String() string {
	return string(s)
}

// Severity grades the disease activity a dose is adjusted for.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Valid returns true if the severity is a recognized value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere:
		return true
	}
	return false
}

// Factor returns the dose multiplier for the severity: 0.7, 1.0 or 1.3.
func (s Severity) Factor() float64 {
	switch s {
	case SeverityMild:
		return 0.7
	case SeveritySevere:
		return 1.3
	}
	return 1.0
}

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}
