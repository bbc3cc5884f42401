package shadow

// Merge combines a partial change document into a base document and
// returns the result as a new Document. Neither input is mutated.
//
// For each key in changes:
//   - a nested Document is merged recursively against the corresponding
//     base field (treated as empty if absent or non-document),
//   - any other value (scalar or sequence) replaces the base field.
//
// Keys present only in base are preserved unchanged. Merge(d, nil) returns
// a copy equal to d; merging is total over well-formed documents.
func Merge(base, changes Document) Document {
	merged := make(Document, len(base)+len(changes))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range changes {
		change, ok := v.(Document)
		if !ok {
			merged[k] = v
			continue
		}
		// Non-document base values are discarded, not merged into.
		baseChild, _ := merged[k].(Document)
		merged[k] = Merge(baseChild, change)
	}
	return merged
}
