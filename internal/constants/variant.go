package constants

// StepVariant selects which loop shape advances the network by one step.
type StepVariant string

const (
	// VariantNodes partitions the flat node index space. Works for any topology.
	VariantNodes StepVariant = "nodes"

	// VariantRows partitions grid rows; each worker sweeps whole rows.
	VariantRows StepVariant = "rows"

	// VariantCollapsed partitions the collapsed width*height index space.
	VariantCollapsed StepVariant = "collapsed"
)

// Valid returns true if the variant is a recognized value.
func (v StepVariant) Valid() bool {
	switch v {
	case VariantNodes, VariantRows, VariantCollapsed:
		return true
	}
	return false
}

// RequiresGrid reports whether the variant only works on 2-D grids.
func (v StepVariant) RequiresGrid() bool {
	return v == VariantRows || v == VariantCollapsed
}

// String returns the string representation of the variant.
func (v StepVariant) String() string {
	return string(v)
}
