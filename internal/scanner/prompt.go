package scanner

import (
	"fmt"
	"path/filepath"
	"strings"
)

// focusAreas lists the vulnerability classes the model should look for in
// each language, keyed by file extension without the dot.
var focusAreas = map[string][]string{
	"php": {
		"SQL Injection via unsanitized database queries",
		"Cross-Site Scripting (XSS) in output",
		"File inclusion vulnerabilities",
		"Authentication bypass",
		"Session management issues",
		"Command injection",
		"Path traversal",
	},
	"js": {
		"Cross-Site Scripting (XSS)",
		"Prototype pollution",
		"Code injection via eval()",
		"DOM-based XSS",
		"Insecure API calls",
		"Client-side validation bypass",
	},
	"py": {
		"SQL Injection",
		"Command injection",
		"Path traversal",
		"Insecure deserialization",
		"Code injection via exec/eval",
		"LDAP injection",
		"Template injection",
	},
	"java": {
		"SQL Injection",
		"XML External Entity (XXE)",
		"Insecure deserialization",
		"Path traversal",
		"LDAP injection",
		"Expression Language injection",
	},
	"c": {
		"Buffer overflow",
		"Use after free",
		"Format string vulnerabilities",
		"Integer overflow",
		"Null pointer dereference",
		"Race conditions",
	},
	"cpp": {
		"Buffer overflow",
		"Use after free",
		"Memory corruption",
		"Integer overflow",
		"Double free",
		"Stack overflow",
	},
}

var genericFocus = []string{
	"Injection vulnerabilities",
	"Authentication issues",
	"Authorization bypass",
	"Input validation problems",
	"Output encoding issues",
}

// FocusAreas returns the focus list for ext ("py" or ".py").
func FocusAreas(ext string) []string {
	if f, ok := focusAreas[strings.ToLower(strings.TrimPrefix(ext, "."))]; ok {
		return f
	}
	return genericFocus
}

const promptTemplate = `You are a security expert analyzing %[1]s code for vulnerabilities.

FOCUS AREAS for %[1]s:
%[2]s

IMPORTANT INSTRUCTIONS:
1. Only report ACTUAL security vulnerabilities, not code quality issues
2. Be specific about the vulnerability type and impact
3. Provide concrete mitigation steps
4. Use the exact format specified below

For each vulnerability found, use this EXACT format:

Vulnerability: [Specific vulnerability name]
CWE: [CWE-XXX format with description]
Severity: [Critical/High/Medium/Low]
Impact: [Detailed explanation of security impact and potential exploitation]
Mitigation: [Specific technical steps to fix the vulnerability]
Affected: [Function/method name and exact line numbers]
Code Snippet: [The exact vulnerable code lines]

ANALYZE THIS CODE:
` + "```" + `%[3]s
%[4]s
` + "```" + `

File: %[5]s

Remember: Only report actual security vulnerabilities with clear exploitation potential.
`

// BuildPrompt renders the analysis prompt for one chunk. It is a pure
// function of its arguments.
func BuildPrompt(chunk, fileName, ext string) string {
	return BuildPromptWithFocus(chunk, fileName, ext, FocusAreas(ext))
}

// BuildPromptWithFocus is BuildPrompt with an explicit focus list.
func BuildPromptWithFocus(chunk, fileName, ext string, focus []string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	var b strings.Builder
	for i, area := range focus {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(area)
	}
	return fmt.Sprintf(promptTemplate, strings.ToUpper(ext), b.String(), ext, chunk, fileName)
}

// extOf returns the lower-cased extension of path without the dot.
func extOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
