package findings

import (
	"regexp"
	"strings"
)

// RawMatch holds the seven uncleaned fields of one finding block.
type RawMatch struct {
	Title      string
	CWE        string
	Severity   string
	Impact     string
	Mitigation string
	Affected   string
	Snippet    string
}

// Grammar is one accepted layout of the inference output.
type Grammar interface {
	Name() string
	Matches(text string) []RawMatch
}

// labelGrammar matches a run of labelled header lines followed by a free-form
// code block. The code block ends at a blank line, at the next block marker
// or at the end of the text.
type labelGrammar struct {
	name   string
	header *regexp.Regexp
	end    *regexp.Regexp
}

// PrimaryGrammar is the layout the prompt asks for.
var PrimaryGrammar Grammar = &labelGrammar{
	name: "primary",
	header: regexp.MustCompile(`(?is)Vulnerability:\s*(.*?)\s*\nCWE:\s*(.*?)\s*\nSeverity:\s*(.*?)\s*\n` +
		`Impact:\s*(.*?)\s*\nMitigation:\s*(.*?)\s*\nAffected:\s*(.*?)\s*\nCode Snippet:\s*`),
	end: regexp.MustCompile(`(?i)\n\n|\nVulnerability:`),
}

// SynonymGrammar accepts the label synonyms models tend to drift into.
var SynonymGrammar Grammar = &labelGrammar{
	name: "synonym",
	header: regexp.MustCompile(`(?is)(?:Issue|Problem|Security Issue):\s*(.*?)\n` +
		`(?:CWE|Type|Category):\s*(.*?)\n` +
		`(?:Risk|Severity|Level):\s*(.*?)\n` +
		`(?:Description|Impact|Risk Description):\s*(.*?)\n` +
		`(?:Fix|Solution|Mitigation|Recommendation):\s*(.*?)\n` +
		`(?:Location|File|Line|Function):\s*(.*?)\n` +
		`(?:Code|Snippet|Example):\s*`),
	end: regexp.MustCompile(`(?i)\n\n|\nIssue:`),
}

// DefaultGrammars is the ordered list the extractor applies.
var DefaultGrammars = []Grammar{PrimaryGrammar, SynonymGrammar}

func (g *labelGrammar) Name() string { return g.name }

func (g *labelGrammar) Matches(text string) []RawMatch {
	var out []RawMatch
	pos := 0
	for pos < len(text) {
		loc := g.header.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		group := func(i int) string {
			s, e := loc[2*i], loc[2*i+1]
			if s < 0 {
				return ""
			}
			return text[pos+s : pos+e]
		}
		codeStart := pos + loc[1]
		codeEnd := len(text)
		if end := g.end.FindStringIndex(text[codeStart:]); end != nil {
			codeEnd = codeStart + end[0]
		}
		out = append(out, RawMatch{
			Title:      strings.TrimSpace(group(1)),
			CWE:        strings.TrimSpace(group(2)),
			Severity:   strings.TrimSpace(group(3)),
			Impact:     strings.TrimSpace(group(4)),
			Mitigation: strings.TrimSpace(group(5)),
			Affected:   strings.TrimSpace(group(6)),
			Snippet:    strings.TrimSpace(text[codeStart:codeEnd]),
		})
		if codeEnd <= pos {
			break
		}
		pos = codeEnd
	}
	return out
}
