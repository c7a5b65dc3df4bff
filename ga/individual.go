package ga

// Individual is the host-side record of one solution vector: its identity,
// lineage and last evaluated fitness. The vector itself stays on the device
// until explicitly read back.
type Individual struct {
	// ID is unique across the whole run, assigned in creation order.
	ID int
	// Generation the individual was created in; the initial population is
	// generation 0.
	Generation int
	// Parents holds the population indexes the individual was bred from.
	// Empty for the initial population.
	Parents []int
	// Result is the fitness the problem assigned.
	Result float32
}
