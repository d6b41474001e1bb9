package findings

// Dedup keeps the first draft for every dedup key, preserving order. It is
// meant to run over the drafts of a single file.
func Dedup(drafts []Draft) []Draft {
	seen := make(map[string]struct{}, len(drafts))
	out := drafts[:0:0]
	for _, d := range drafts {
		k := d.DedupKey()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return out
}
