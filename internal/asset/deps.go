package asset

// directDependencies returns this asset's direct dependencies (imports and
// references, in order of appearance), including those discovered in
// compiled output by the successor unit once it has run.
func (a *Asset) directDependencies() []*Asset {
	a.parse()

	if a.successor == nil || !a.ran[phaseCompile] {
		return a.deps
	}

	deps := make([]*Asset, 0, len(a.deps)+4)
	deps = append(deps, a.deps...)
	for _, d := range a.successor.directDependencies() {
		if !containsAsset(deps, d) {
			deps = append(deps, d)
		}
	}

	return deps
}

// directImports is directDependencies restricted to imports.
func (a *Asset) directImports() []*Asset {
	a.parse()

	if a.successor == nil || !a.ran[phaseCompile] {
		return a.imports
	}

	imports := make([]*Asset, 0, len(a.imports)+4)
	imports = append(imports, a.imports...)
	for _, imp := range a.successor.directImports() {
		if !containsAsset(imports, imp) {
			imports = append(imports, imp)
		}
	}

	return imports
}

// Dependencies returns every asset transitively reachable through imports
// and references, deduplicated, each dependency preceding every asset that
// depends on it, without the receiver itself.
func (a *Asset) Dependencies() []*Asset {
	a.sync()
	return accumulate(a, (*Asset).directDependencies)
}

// allImports is Dependencies restricted to the import relation; it
// determines merge order.
func (a *Asset) allImports() []*Asset {
	return accumulate(a, (*Asset).directImports)
}

// accumulate walks the dependency relation with a worklist seeded with the
// asset itself: repeatedly take the first entry not yet done, mark it
// done, and splice its not-yet-done direct entries immediately before it,
// deduplicating (first occurrence wins). An asset already marked done is
// never re-expanded, so cycles terminate. The result orders every
// dependency before every asset that depends on it and excludes self.
func accumulate(self *Asset, direct func(*Asset) []*Asset) []*Asset {
	done := make(map[*Asset]bool)
	list := []*Asset{self}

	idx := 0
	for idx >= 0 {
		current := list[idx]
		done[current] = true

		var pending []*Asset
		for _, d := range direct(current) {
			if !done[d] {
				pending = append(pending, d)
			}
		}

		if len(pending) > 0 {
			next := make([]*Asset, 0, len(list)+len(pending))
			next = append(next, list[:idx]...)
			next = append(next, pending...)
			next = append(next, list[idx:]...)
			list = dedupe(next)
		}

		idx = -1
		for i, u := range list {
			if !done[u] {
				idx = i
				break
			}
		}
	}

	result := make([]*Asset, 0, len(list)-1)
	for _, u := range list {
		if u != self {
			result = append(result, u)
		}
	}

	return result
}

// dedupe keeps the first occurrence of each asset.
func dedupe(list []*Asset) []*Asset {
	seen := make(map[*Asset]bool, len(list))
	out := list[:0:0]
	for _, u := range list {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}

	return out
}

func containsAsset(list []*Asset, target *Asset) bool {
	for _, u := range list {
		if u == target {
			return true
		}
	}

	return false
}
