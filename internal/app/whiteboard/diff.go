package whiteboard

// Diff is the result of reconciling a local document against an incoming one.
type Diff struct {
	ToDelete []Object
	ToAdd    []Object
}

// Empty reports whether the diff changes nothing.
func (d Diff) Empty() bool {
	return len(d.ToDelete) == 0 && len(d.ToAdd) == 0
}

// Compute diffs local against incoming by key-set membership. Objects are never
// updated in place: a changed object shows up as one delete and one add. Objects
// sharing a key are indistinguishable, so each key appears at most once per side.
func Compute(local, incoming []Object, key KeyFunc) Diff {
	if key == nil {
		key = StructuralKey
	}

	localKeys := make(map[string]struct{}, len(local))
	for _, o := range local {
		localKeys[key(o)] = struct{}{}
	}
	incomingKeys := make(map[string]struct{}, len(incoming))
	for _, o := range incoming {
		incomingKeys[key(o)] = struct{}{}
	}

	var diff Diff

	seen := make(map[string]struct{})
	for _, o := range local {
		k := key(o)
		if _, keep := incomingKeys[k]; keep {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		diff.ToDelete = append(diff.ToDelete, o)
	}

	seen = make(map[string]struct{})
	for _, o := range incoming {
		k := key(o)
		if _, have := localKeys[k]; have {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		diff.ToAdd = append(diff.ToAdd, o)
	}

	return diff
}

// apply removes every local object keyed in diff.ToDelete and appends diff.ToAdd.
func (d *Document) apply(diff Diff, key KeyFunc) {
	if len(diff.ToDelete) > 0 {
		keys := make(map[string]struct{}, len(diff.ToDelete))
		for _, o := range diff.ToDelete {
			keys[key(o)] = struct{}{}
		}
		d.removeKeys(keys, key)
	}
	d.objects = append(d.objects, diff.ToAdd...)
}
