package core

// Equal reports whether a and b are structurally identical. It compares
// canonical renderings, which serialize every node of the tree.
func Equal(a, b Expr) bool {
	return Render(a) == Render(b)
}

// EqualComprehension reports whether a and b have structurally identical
// steps, including join-group markers.
func EqualComprehension(a, b *Comprehension) bool {
	return renderComprehension(a) == renderComprehension(b)
}
