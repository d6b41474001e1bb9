// Package knowledge loads the security reference index that grounds every
// analysis prompt and retrieves the entries most relevant to a prompt.
package knowledge

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// IndexFile is the file Open expects inside the knowledge directory.
const IndexFile = "index.jsonl"

// ErrIndexMissing means the knowledge directory has no index. Scans must not
// start without it.
var ErrIndexMissing = errors.New("knowledge index missing")

// Doc is one reference entry, e.g. a CWE summary or a secure coding rule.
type Doc struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Text  string   `json:"text"`
	CWE   string   `json:"cwe,omitempty"`
	Tags  []string `json:"tags,omitempty"`

	terms map[string]int
}

// Base is an in-memory keyword index over the reference entries.
type Base struct {
	path  string
	docs  []Doc
	df    map[string]int
	topK  int
	cache *lru.Cache[string, []Doc]
}

// Open loads dir/index.jsonl. A missing index returns ErrIndexMissing.
func Open(dir string, topK, cacheSize int) (*Base, error) {
	path := filepath.Join(dir, IndexFile)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexMissing, path)
		}
		return nil, fmt.Errorf("opening knowledge index: %w", err)
	}
	defer f.Close()

	if topK <= 0 {
		topK = 3
	}
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, []Doc](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating retrieval cache: %w", err)
	}
	b := &Base{path: path, df: make(map[string]int), topK: topK, cache: cache}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var d Doc
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("parsing %s line %d: %w", path, line, err)
		}
		b.add(d)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading knowledge index: %w", err)
	}
	return b, nil
}

func (b *Base) add(d Doc) {
	d.terms = make(map[string]int)
	for _, t := range tokenize(d.Title + " " + d.Text + " " + d.CWE + " " + strings.Join(d.Tags, " ")) {
		d.terms[t]++
	}
	for t := range d.terms {
		b.df[t]++
	}
	b.docs = append(b.docs, d)
}

// Len is the number of loaded entries.
func (b *Base) Len() int { return len(b.docs) }

// Check verifies the index file is still present.
func (b *Base) Check() error {
	if _, err := os.Stat(b.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrIndexMissing, b.path)
		}
		return fmt.Errorf("checking knowledge index: %w", err)
	}
	return nil
}

// Retrieve returns up to topK entries ranked by tf-idf overlap with query.
// Entries sharing no terms with the query are never returned.
func (b *Base) Retrieve(query string) []Doc {
	if len(b.docs) == 0 {
		return nil
	}
	sum := sha256.Sum256([]byte(query))
	key := hex.EncodeToString(sum[:])
	if docs, ok := b.cache.Get(key); ok {
		return docs
	}

	qterms := make(map[string]struct{})
	for _, t := range tokenize(query) {
		qterms[t] = struct{}{}
	}
	type scored struct {
		idx   int
		score float64
	}
	var hits []scored
	n := float64(len(b.docs))
	for i, d := range b.docs {
		var s float64
		for t := range qterms {
			if tf := d.terms[t]; tf > 0 {
				s += float64(tf) * math.Log(1+n/float64(b.df[t]))
			}
		}
		if s > 0 {
			hits = append(hits, scored{i, s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > b.topK {
		hits = hits[:b.topK]
	}
	out := make([]Doc, len(hits))
	for i, h := range hits {
		out[i] = b.docs[h.idx]
	}
	b.cache.Add(key, out)
	return out
}

// Augment prefixes prompt with the retrieved reference material.
func Augment(prompt string, docs []Doc) string {
	if len(docs) == 0 {
		return prompt
	}
	var sb strings.Builder
	sb.WriteString("SECURITY REFERENCE MATERIAL:\n")
	for _, d := range docs {
		sb.WriteString("- ")
		if d.CWE != "" {
			sb.WriteString(d.CWE + " ")
		}
		sb.WriteString(d.Title)
		sb.WriteString(": ")
		sb.WriteString(strings.TrimSpace(d.Text))
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	sb.WriteString(prompt)
	return sb.String()
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}
