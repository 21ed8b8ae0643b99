package board

import "fmt"

// CollisionError reports that an item's declared outputs overlap with
// another item's in the same project, with no dependency relation to
// justify the shared ownership.
type CollisionError struct {
	ItemID     string
	OtherID    string
	Paths      []string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("item %s collides with item %s on outputs %v", e.ItemID, e.OtherID, e.Paths)
}

// outputPaths returns the non-empty output paths of an Outputs value.
func outputPaths(o Outputs) []string {
	var paths []string
	if o.Test != "" {
		paths = append(paths, o.Test)
	}
	if o.Impl != "" {
		paths = append(paths, o.Impl)
	}
	if o.Types != "" {
		paths = append(paths, o.Types)
	}
	return paths
}

// sharedPaths returns the output paths that a and b both declare.
func sharedPaths(a, b Outputs) []string {
	bSet := make(map[string]bool)
	for _, p := range outputPaths(b) {
		bSet[p] = true
	}
	var shared []string
	for _, p := range outputPaths(a) {
		if bSet[p] {
			shared = append(shared, p)
		}
	}
	return shared
}

// directlyRelated reports whether one of the two items depends on the
// other, directly, in either direction.
func directlyRelated(itemID, otherID string, deps []ItemDependency) bool {
	for _, d := range deps {
		if (d.ItemID == itemID && d.DependsOnID == otherID) ||
			(d.ItemID == otherID && d.DependsOnID == itemID) {
			return true
		}
	}
	return false
}

// CheckOutputCollision reports a CollisionError when candidate shares a
// non-empty output path with any other item in the same project and the
// two items have no direct dependency relation. deps is the full set of
// dependency edges for the project; others excludes the candidate itself.
func CheckOutputCollision(candidate Item, others []Item, deps []ItemDependency) error {
	if len(outputPaths(candidate.Outputs)) == 0 {
		return nil
	}
	for _, other := range others {
		if other.ID == candidate.ID {
			continue
		}
		shared := sharedPaths(candidate.Outputs, other.Outputs)
		if len(shared) == 0 {
			continue
		}
		if directlyRelated(candidate.ID, other.ID, deps) {
			continue
		}
		return &CollisionError{ItemID: candidate.ID, OtherID: other.ID, Paths: shared}
	}
	return nil
}
