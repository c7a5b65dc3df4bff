package ga

// Direction selects whether lower or higher fitness results win.
type Direction int

const (
	Minimize Direction = iota
	Maximize
)

func (d Direction) String() string {
	if d == Maximize {
		return "maximize"
	}
	return "minimize"
}

// Better reports whether result a beats result b under the direction. Equal
// results are not better, which keeps earlier individuals ahead on ties.
func (d Direction) Better(a, b float32) bool {
	if d == Maximize {
		return a > b
	}
	return a < b
}
