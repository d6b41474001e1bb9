package models

// Source describes where a scan's files come from: a local directory or a
// remote git repository that is cloned into a temporary directory first.
type Source struct {
	Path     string `json:"path,omitempty"`
	CloneURL string `json:"clone_url,omitempty"`
	Branch   string `json:"branch,omitempty"`
}

// Remote reports whether the source has to be cloned.
func (s Source) Remote() bool {
	return s.CloneURL != ""
}

// Label is a short human-readable name for the source.
func (s Source) Label() string {
	if s.Remote() {
		if s.Branch != "" {
			return s.CloneURL + "@" + s.Branch
		}
		return s.CloneURL
	}
	return s.Path
}
