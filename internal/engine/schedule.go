package engine

import "mcpflow/backend/pkg/models"

// Schedule computes the execution order for a node set using Kahn's
// algorithm over the declared input edges. Each node's inputs are its
// dependencies, so the reverse adjacency list records dependents.
//
// Ties among nodes that become ready at the same time are broken by FIFO
// enqueue order. That order is part of the engine's contract: two different
// topological orders may both be legal, but only this one is produced, so
// reloading the same node set always yields the same schedule.
func Schedule(nodes []models.Node) ([]string, error) {
	dependents := make(map[string][]string, len(nodes))
	pending := make(map[string]int, len(nodes))

	for _, n := range nodes {
		pending[n.ID] = len(n.Inputs)
		for _, input := range n.Inputs {
			dependents[input] = append(dependents[input], n.ID)
		}
	}

	// Seed the queue with every node that has no dependencies, in
	// definition order.
	var queue []string
	for _, n := range nodes {
		if len(n.Inputs) == 0 {
			queue = append(queue, n.ID)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, dep := range dependents[id] {
			pending[dep]--
			if pending[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(nodes) {
		// The validator rejects cyclic definitions at save time; this is
		// the defensive re-check, fatal before any node executes.
		return nil, ErrCycle
	}
	return order, nil
}
