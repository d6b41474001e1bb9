// Package profiles manages review profiles: markdown files whose YAML
// frontmatter scopes them to languages and whose bullet list replaces the
// built-in focus areas of the analysis prompt.
package profiles

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/CosmoTheDev/codesense/models"
)

//go:embed defaults/*.md
var defaultsFS embed.FS

// Profile is a parsed review profile.
type Profile struct {
	// Name is the machine-readable identifier (matches the filename without .md).
	Name string `yaml:"name"`
	// Version is a monotonically increasing integer for future compatibility.
	Version int `yaml:"version"`
	// Description is a one-line human-readable summary.
	Description string `yaml:"description"`
	// Languages lists the file extensions the profile applies to. Empty = all.
	Languages []string `yaml:"languages"`
	// MinSeverity drops findings below this level. Empty keeps everything.
	MinSeverity string `yaml:"min_severity"`
	// Tags are searchable labels for the profile.
	Tags []string `yaml:"tags"`
	// Focus is the bullet list of the markdown body.
	Focus []string `yaml:"-"`
	// Body is the markdown content after the YAML frontmatter.
	Body string `yaml:"-"`
	// Bundled is true if this profile was loaded from the embedded defaults.
	Bundled bool `yaml:"-"`
}

// AppliesTo reports whether the profile covers files with extension ext.
func (p *Profile) AppliesTo(ext string) bool {
	if p == nil {
		return false
	}
	if len(p.Languages) == 0 {
		return true
	}
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	for _, l := range p.Languages {
		if strings.TrimPrefix(strings.ToLower(l), ".") == ext {
			return true
		}
	}
	return false
}

// FocusFor returns the profile's focus areas for ext, or false when the
// built-in list should be used.
func (p *Profile) FocusFor(ext string) ([]string, bool) {
	if !p.AppliesTo(ext) || len(p.Focus) == 0 {
		return nil, false
	}
	return p.Focus, true
}

// Allows reports whether a finding of severity sev passes the profile's
// threshold. A nil profile allows everything.
func (p *Profile) Allows(sev models.SeverityLevel) bool {
	if p == nil {
		return true
	}
	min, ok := models.ParseSeverity(p.MinSeverity)
	if !ok {
		return true
	}
	return sev.AtLeast(min)
}

// Load reads a profile by name from the user profile directory (falling back
// to bundled defaults). An empty name returns nil.
func Load(name, profilesDir string) (*Profile, error) {
	if name == "" {
		return nil, nil
	}

	if profilesDir != "" {
		path := filepath.Join(profilesDir, name+".md")
		if data, err := os.ReadFile(path); err == nil {
			p, err := parse(data)
			if err != nil {
				return nil, fmt.Errorf("profiles: parse %q: %w", path, err)
			}
			if p.Name == "" {
				p.Name = name
			}
			return p, nil
		}
	}

	data, err := defaultsFS.ReadFile("defaults/" + name + ".md")
	if err != nil {
		return nil, fmt.Errorf("profiles: profile %q not found", name)
	}
	p, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("profiles: parse bundled %q: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	p.Bundled = true
	return p, nil
}

// List returns every available profile sorted by name. User profiles shadow
// bundled ones of the same name.
func List(profilesDir string) ([]Profile, error) {
	byName := make(map[string]Profile)

	entries, err := defaultsFS.ReadDir("defaults")
	if err != nil {
		return nil, fmt.Errorf("profiles: reading embedded defaults: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		data, err := defaultsFS.ReadFile("defaults/" + entry.Name())
		if err != nil {
			continue
		}
		p, err := parse(data)
		if err != nil {
			slog.Warn("Skipping malformed bundled profile", "file", entry.Name(), "error", err)
			continue
		}
		if p.Name == "" {
			p.Name = strings.TrimSuffix(entry.Name(), ".md")
		}
		p.Bundled = true
		byName[p.Name] = *p
	}

	if profilesDir != "" {
		_ = filepath.WalkDir(profilesDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			p, err := parse(data)
			if err != nil {
				slog.Warn("Skipping malformed user profile", "file", path, "error", err)
				return nil
			}
			if p.Name == "" {
				p.Name = strings.TrimSuffix(d.Name(), ".md")
			}
			byName[p.Name] = *p
			return nil
		})
	}

	out := make([]Profile, 0, len(byName))
	for _, p := range byName {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DefaultDir returns the default profiles directory: ~/.codesense/profiles/.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".codesense", "profiles")
}

// Init creates the user profiles directory and copies any missing bundled
// profiles into it. Existing files are left alone.
func Init(profilesDir string) error {
	if err := os.MkdirAll(profilesDir, 0o750); err != nil {
		return fmt.Errorf("profiles: create dir %s: %w", profilesDir, err)
	}

	entries, err := defaultsFS.ReadDir("defaults")
	if err != nil {
		return fmt.Errorf("profiles: reading embedded defaults: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		dest := filepath.Join(profilesDir, entry.Name())
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		data, err := defaultsFS.ReadFile("defaults/" + entry.Name())
		if err != nil {
			continue
		}
		if err := os.WriteFile(dest, data, 0o640); err != nil {
			slog.Warn("Failed to write default profile", "file", dest, "error", err)
		}
	}
	return nil
}

// parse extracts YAML frontmatter, the markdown body and its bullet list.
func parse(data []byte) (*Profile, error) {
	const delim = "---"

	data = bytes.TrimLeft(data, " \t\n\r")

	var p Profile
	body := strings.TrimSpace(string(data))
	if bytes.HasPrefix(data, []byte(delim)) {
		rest := bytes.TrimPrefix(data, []byte(delim))
		idx := bytes.Index(rest, []byte("\n"+delim))
		if idx < 0 {
			return nil, fmt.Errorf("unterminated YAML frontmatter (missing closing ---)")
		}
		if err := yaml.Unmarshal(rest[:idx], &p); err != nil {
			return nil, fmt.Errorf("invalid YAML frontmatter: %w", err)
		}
		body = strings.TrimSpace(string(rest[idx+len("\n"+delim):]))
	}
	p.Body = body
	p.Focus = bullets(body)
	if p.MinSeverity != "" {
		if _, ok := models.ParseSeverity(p.MinSeverity); !ok {
			return nil, fmt.Errorf("unknown min_severity %q", p.MinSeverity)
		}
	}
	return &p, nil
}

// bullets returns the top-level "- " or "* " items of a markdown body.
func bullets(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, " \t\r")
		for _, marker := range []string{"- ", "* "} {
			if item, ok := strings.CutPrefix(line, marker); ok {
				if item = strings.TrimSpace(item); item != "" {
					out = append(out, item)
				}
				break
			}
		}
	}
	return out
}
