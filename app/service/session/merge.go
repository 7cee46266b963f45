package session

import (
	"github.com/elliotchance/pie/v2"
)

// Merge folds one turn of extraction output into state and returns the new state.
// The input state is left untouched.
//
// Topics and documents are unioned on their normalized key keeping the first-seen
// spelling; blank values are ignored. Tasks are appended in arrival order and never
// deduplicated against earlier ones.
func Merge(state State, topics, documents []string, tasks []Task) State {
	next := state.Clone()

	next.Topics = union(next.Topics, topics)
	next.Documents = union(next.Documents, documents)
	next.Tasks = append(next.Tasks, tasks...)

	return next
}

// Finalize is the hard normalization applied when a call ends: topics and documents
// are lower-cased, trimmed and deduplicated in first-seen order. Tasks are kept verbatim.
func Finalize(state State) State {
	next := state.Clone()

	next.Topics = normalizeAll(next.Topics)
	next.Documents = normalizeAll(next.Documents)

	return next
}

func union(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, v := range existing {
		seen[Normalize(v)] = struct{}{}
	}

	for _, v := range incoming {
		key := Normalize(v)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		existing = append(existing, v)
	}

	return existing
}

func normalizeAll(values []string) []string {
	normalized := pie.Map(values, Normalize)

	return union([]string{}, normalized)
}
