package findings

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Match tier names recorded on findings.
const (
	TierExact      = "exact"
	TierWhitespace = "whitespace"
	TierSimilarity = "similarity"
	TierNone       = "none"
)

// Location is where a reported snippet was found in a file.
type Location struct {
	Region     string
	StartLine  int
	EndLine    int
	Confidence float64
	Tier       string
	// Resolved is false for the [1,1] fallback.
	Resolved bool
}

// Matcher is one tier of the locator. Content and snippet are already
// normalised; ok is false when the tier cannot place the snippet.
type Matcher interface {
	Name() string
	Match(content, snippet string) (loc Location, ok bool)
}

// LocatorOptions tunes the similarity tier.
type LocatorOptions struct {
	SimilarityThreshold float64
	WindowSlack         int
	// MaxFileLines skips the similarity tier for larger files.
	// MaxWindowComparisons is the number of windows it may score.
	MaxFileLines         int
	MaxWindowComparisons int
}

// DefaultLocatorOptions mirrors the shipped configuration defaults.
func DefaultLocatorOptions() LocatorOptions {
	return LocatorOptions{
		SimilarityThreshold:  0.6,
		WindowSlack:          6,
		MaxFileLines:         5000,
		MaxWindowComparisons: 4000,
	}
}

// Locator resolves snippets through an ordered chain of matchers.
type Locator struct {
	matchers []Matcher
}

// NewLocator builds the default exact → whitespace → similarity chain.
func NewLocator(opts LocatorOptions) *Locator {
	d := DefaultLocatorOptions()
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = d.SimilarityThreshold
	}
	if opts.WindowSlack < 0 {
		opts.WindowSlack = d.WindowSlack
	}
	if opts.MaxFileLines <= 0 {
		opts.MaxFileLines = d.MaxFileLines
	}
	if opts.MaxWindowComparisons <= 0 {
		opts.MaxWindowComparisons = d.MaxWindowComparisons
	}
	return NewLocatorWith(exactMatcher{}, whitespaceMatcher{}, &similarityMatcher{opts: opts})
}

// NewLocatorWith builds a locator from an explicit matcher chain.
func NewLocatorWith(matchers ...Matcher) *Locator {
	return &Locator{matchers: matchers}
}

var textReplacer = strings.NewReplacer(
	"\r\n", "\n",
	"\r", "\n",
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
)

func normalizeText(s string) string {
	return textReplacer.Replace(s)
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Locate returns the first successful tier's location, or the original
// snippet at [1,1] when no tier can place it.
func (l *Locator) Locate(content, snippet string) Location {
	text := normalizeText(content)
	snip := stripFences(normalizeText(snippet))
	if snip != "" && text != "" {
		for _, m := range l.matchers {
			if loc, ok := m.Match(text, snip); ok {
				loc.Tier = m.Name()
				loc.Resolved = true
				return loc
			}
		}
	}
	return Location{Region: snippet, StartLine: 1, EndLine: 1, Tier: TierNone}
}

// spanLocation converts a byte span of text into a 1-indexed line range.
func spanLocation(text string, start, end int) Location {
	region := text[start:end]
	first := strings.Count(text[:start], "\n") + 1
	last := first + strings.Count(strings.TrimRight(region, "\n"), "\n")
	return Location{Region: region, StartLine: first, EndLine: last}
}

type exactMatcher struct{}

func (exactMatcher) Name() string { return TierExact }

func (exactMatcher) Match(content, snippet string) (Location, bool) {
	i := strings.Index(content, snippet)
	if i < 0 {
		return Location{}, false
	}
	loc := spanLocation(content, i, i+len(snippet))
	loc.Confidence = 1
	return loc, true
}

type whitespaceMatcher struct{}

func (whitespaceMatcher) Name() string { return TierWhitespace }

func (whitespaceMatcher) Match(content, snippet string) (Location, bool) {
	tokens := strings.Fields(snippet)
	if len(tokens) == 0 {
		return Location{}, false
	}
	for i, t := range tokens {
		tokens[i] = regexp.QuoteMeta(t)
	}
	re, err := regexp.Compile(strings.Join(tokens, `\s+`))
	if err != nil {
		return Location{}, false
	}
	span := re.FindStringIndex(content)
	if span == nil {
		return Location{}, false
	}
	loc := spanLocation(content, span[0], span[1])
	loc.Confidence = 0.9
	return loc, true
}

type numberedLine struct {
	no   int
	text string
}

func nonEmptyLines(s string) []numberedLine {
	var out []numberedLine
	for i, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			out = append(out, numberedLine{no: i + 1, text: t})
		}
	}
	return out
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

type similarityMatcher struct {
	opts LocatorOptions
}

func (m *similarityMatcher) Name() string { return TierSimilarity }

// windowSizes orders the candidate window sizes closest to n first, the
// smaller size winning a tie.
func windowSizes(n, slack, fileLines int) []int {
	sizes := []int{n}
	for d := 1; d <= slack; d++ {
		sizes = append(sizes, n-d, n+d)
	}
	out := sizes[:0]
	for _, w := range sizes {
		if w >= 1 && w <= fileLines {
			out = append(out, w)
		}
	}
	return out
}

// Match scores line windows until MaxWindowComparisons is spent. A budget
// that runs out before any window clears the threshold is inconclusive.
func (m *similarityMatcher) Match(content, snippet string) (Location, bool) {
	fileLines := nonEmptyLines(content)
	snipLines := nonEmptyLines(snippet)
	if len(fileLines) == 0 || len(snipLines) == 0 || len(fileLines) > m.opts.MaxFileLines {
		return Location{}, false
	}

	target := make([]string, len(snipLines))
	for i, l := range snipLines {
		target[i] = l.text
	}
	matcher := difflib.NewMatcherWithJunk(nil, chars(strings.Join(target, "\n")), false, nil)

	best, bestStart, bestEnd := -1.0, 0, 0
	budget := m.opts.MaxWindowComparisons
	window := make([]string, 0, len(snipLines)+m.opts.WindowSlack)
scan:
	for _, w := range windowSizes(len(snipLines), m.opts.WindowSlack, len(fileLines)) {
		for i := 0; i+w <= len(fileLines); i++ {
			if budget == 0 || best == 1 {
				break scan
			}
			budget--
			window = window[:0]
			for _, l := range fileLines[i : i+w] {
				window = append(window, l.text)
			}
			matcher.SetSeq1(chars(strings.Join(window, "\n")))
			floor := max(best, m.opts.SimilarityThreshold)
			if matcher.RealQuickRatio() < floor || matcher.QuickRatio() < floor {
				continue
			}
			if r := matcher.Ratio(); r > best {
				best, bestStart, bestEnd = r, i, i+w-1
			}
		}
	}
	if best < m.opts.SimilarityThreshold {
		return Location{}, false
	}

	start, end := fileLines[bestStart].no, fileLines[bestEnd].no
	lines := strings.Split(content, "\n")
	return Location{
		Region:     strings.Join(lines[start-1:end], "\n"),
		StartLine:  start,
		EndLine:    end,
		Confidence: best,
	}, true
}
