// Package quality scores and gates prompt text before it is allowed to
// stay in a user's active set.
//
// Validation is a tagged list of heuristic rules rather than hard-coded
// checks, so new upstream extraction bugs can be caught by appending a
// rule. Gating is boolean; the score is a weighted aggregate used only
// for sorting and reporting.
package quality

import (
	"regexp"
	"strings"
)

// Issue identifies which rule a prompt failed.
type Issue string

const (
	IssueNoQuestionMark   Issue = "no_question_mark"
	IssueTooShort         Issue = "too_short"
	IssueTooLong          Issue = "too_long"
	IssueBrokenGrammar    Issue = "broken_grammar"
	IssueDoubleWhitespace Issue = "double_whitespace"
	IssueEmpty            Issue = "empty"
)

const (
	// MinWords is the minimum word count for a usable prompt.
	MinWords = 5
	// MaxWords keeps prompts to a single readable question.
	MaxWords = 40
	// MaxScore is the top of the score range.
	MaxScore = 100
)

// Result is the outcome of validating one prompt text.
type Result struct {
	Valid  bool    `json:"valid"`
	Score  int     `json:"score"`
	Issues []Issue `json:"issues,omitempty"`
}

// Rule is a single validation heuristic. Weight is the score penalty
// applied when the rule fails; any failing rule with Gate set also marks
// the prompt invalid.
type Rule struct {
	Issue  Issue
	Weight int
	Gate   bool
	Check  func(text string) bool
}

// brokenGrammarRegexes match artifacts of upstream entity extraction,
// e.g. "the said spoke" or "a was". Matched case-insensitively.
var brokenGrammarRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bthe (said|told|asked|spoke)\b`),
	regexp.MustCompile(`(?i)\ba (was|were|is|are)\b`),
	regexp.MustCompile(`(?i)\byour the\b`),
	regexp.MustCompile(`(?i)\bthe the\b`),
	regexp.MustCompile(`(?i)\babout about\b`),
}

var doubleWhitespaceRegex = regexp.MustCompile(`\S\s{2,}\S`)

// defaultRules is the standard rule set, in evaluation order.
var defaultRules = []Rule{
	{
		Issue:  IssueEmpty,
		Weight: MaxScore,
		Gate:   true,
		Check:  func(text string) bool { return strings.TrimSpace(text) == "" },
	},
	{
		Issue:  IssueNoQuestionMark,
		Weight: 40,
		Gate:   true,
		Check:  func(text string) bool { return !strings.HasSuffix(strings.TrimSpace(text), "?") },
	},
	{
		Issue:  IssueTooShort,
		Weight: 40,
		Gate:   true,
		Check:  func(text string) bool { return wordCount(text) < MinWords },
	},
	{
		Issue:  IssueTooLong,
		Weight: 15,
		Gate:   false,
		Check:  func(text string) bool { return wordCount(text) > MaxWords },
	},
	{
		Issue:  IssueBrokenGrammar,
		Weight: 50,
		Gate:   true,
		Check: func(text string) bool {
			for _, re := range brokenGrammarRegexes {
				if re.MatchString(text) {
					return true
				}
			}
			return false
		},
	},
	{
		Issue:  IssueDoubleWhitespace,
		Weight: 10,
		Gate:   true,
		Check:  func(text string) bool { return doubleWhitespaceRegex.MatchString(text) },
	},
}

// Validator runs a rule set over prompt text.
type Validator struct {
	rules []Rule
}

// NewValidator returns a validator with the standard rule set.
func NewValidator() *Validator {
	return &Validator{rules: defaultRules}
}

// NewValidatorWithRules returns a validator with a custom rule set.
func NewValidatorWithRules(rules []Rule) *Validator {
	return &Validator{rules: rules}
}

// Validate checks one prompt text. Pure function over the text.
func (v *Validator) Validate(text string) Result {
	res := Result{Valid: true, Score: MaxScore}
	for _, rule := range v.rules {
		if !rule.Check(text) {
			continue
		}
		res.Issues = append(res.Issues, rule.Issue)
		res.Score -= rule.Weight
		if rule.Gate {
			res.Valid = false
		}
	}
	if res.Score < 0 {
		res.Score = 0
	}
	return res
}

// Validate checks text against the standard rule set.
func Validate(text string) Result {
	return NewValidator().Validate(text)
}

// IsBroken reports whether text matches a known broken-grammar pattern.
// Used by the emergency cleanup path, which purges on grammar alone.
func IsBroken(text string) bool {
	for _, re := range brokenGrammarRegexes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// IssueStrings converts issues to plain strings for structured logging.
func IssueStrings(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = string(issue)
	}
	return out
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
