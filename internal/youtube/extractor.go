package youtube

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/MimeLyc/ytsub-pipeline/internal/apperr"
	"github.com/MimeLyc/ytsub-pipeline/pkg/log"
)

// MatchResult is the outcome of one matcher against a page. When Found is
// false the other fields are empty. When Found is true and Err is nil, JSON
// holds exactly one decoded object.
type MatchResult struct {
	Matcher string
	Found   bool
	JSON    json.RawMessage
	Err     error
}

// Matcher locates the player document by the statement that assigns it.
// Pattern must match up to, but not including, the opening brace.
type Matcher struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultMatchers are tried in order; the first one that yields a decodable
// object wins.
var DefaultMatchers = []Matcher{
	{Name: "assignment", Pattern: regexp.MustCompile(`ytInitialPlayerResponse\s*=\s*\{`)},
	{Name: "window-property", Pattern: regexp.MustCompile(`window\["ytInitialPlayerResponse"\]\s*=\s*\{`)},
	{Name: "var-declaration", Pattern: regexp.MustCompile(`var\s+ytInitialPlayerResponse\s*=\s*\{`)},
}

// Match scans page for the matcher's assignment and decodes the object
// literal that follows it. The decoder stops at the object's closing brace,
// so braces or semicolons inside string values do not truncate the match.
func (m Matcher) Match(page string) MatchResult {
	loc := m.Pattern.FindStringIndex(page)
	if loc == nil {
		return MatchResult{Matcher: m.Name}
	}

	start := loc[1] - 1 // the opening brace
	dec := json.NewDecoder(strings.NewReader(page[start:]))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return MatchResult{Matcher: m.Name, Found: true, Err: err}
	}
	return MatchResult{Matcher: m.Name, Found: true, JSON: raw}
}

// FindPlayerResponse runs matchers in order and returns the first result
// that decoded cleanly. If none did, it returns the last found-but-invalid
// result, or a not-found result.
func FindPlayerResponse(page string, matchers []Matcher) MatchResult {
	var lastBad *MatchResult
	for _, m := range matchers {
		res := m.Match(page)
		if !res.Found {
			continue
		}
		if res.Err == nil {
			return res
		}
		log.Warn("Player data matched by %s is not valid JSON: %v", m.Name, res.Err)
		bad := res
		lastBad = &bad
	}
	if lastBad != nil {
		return *lastBad
	}
	return MatchResult{}
}

// ExtractPlayerResponse pulls the embedded player document out of a watch
// page.
func ExtractPlayerResponse(page string) (*PlayerResponse, error) {
	res := FindPlayerResponse(page, DefaultMatchers)
	if !res.Found {
		return nil, apperr.New(apperr.ErrExtraction, "player data not found in page")
	}
	if res.Err != nil {
		return nil, apperr.NewWithCause(apperr.ErrExtraction, "player data is not valid JSON", res.Err).
			WithContext("matcher", res.Matcher)
	}

	var pr PlayerResponse
	if err := json.Unmarshal(res.JSON, &pr); err != nil {
		return nil, apperr.NewWithCause(apperr.ErrExtraction, "player data has unexpected shape", err).
			WithContext("matcher", res.Matcher)
	}
	return &pr, nil
}
