package network

import "errors"

// Configuration errors. These are returned from the construction call that
// detected them and indicate a caller bug.
var (
	ErrDimensionMismatch    = errors.New("grid dimensions do not match node count")
	ErrUnsupportedDimension = errors.New("only 1 and 2 dimensional regular networks are supported")
	ErrAlreadyInitialized   = errors.New("network topology already initialized")
	ErrInvalidSize          = errors.New("network size must be non-negative")
	ErrInvalidCoefficient   = errors.New("diffusion and damping coefficients must be non-negative")
	ErrInvalidProbability   = errors.New("probability must be within [0, 1]")
	ErrInvalidDegree        = errors.New("small-world degree must be even, non-negative and below the node count")
	ErrUnknownTopology      = errors.New("unknown topology kind")
	ErrSourceLength         = errors.New("source vector length does not match node count")
	ErrInvalidRange         = errors.New("source range minimum exceeds maximum")
	ErrUnknownSourceMode    = errors.New("unknown source mode")
	ErrNodeOutOfRange       = errors.New("node id out of range")
)
