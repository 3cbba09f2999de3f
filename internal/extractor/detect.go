package extractor

import (
	"math"
	"sort"
	"strings"
)

// DetectedLanguage is a scored language candidate.
type DetectedLanguage struct {
	Name       string
	Confidence float64
}

// DetectedFramework is a scored framework candidate tied to a language.
type DetectedFramework struct {
	Name       string
	Language   string
	Confidence float64
}

// DetectedCodeBlock is one fenced code block found in the text.
type DetectedCodeBlock struct {
	Language   string
	Content    string // truncated to 500 chars
	FullLength int
}

// DetectedError is one matched error signature occurrence.
type DetectedError struct {
	Type       string
	Message    string
	Context    string
	Importance float64
}

// DetectedTopic is a scored topic candidate.
type DetectedTopic struct {
	Name       string
	Confidence float64
}

// DetectedEntities bundles the simple entity-mention lists (
// "Entities").
type DetectedEntities struct {
	Files     []string
	Functions []string
	Classes   []string
	URLs      []string
}

func countOccurrences(haystack, needle string) int {
	if needle == "" {
		return 0
	}
	return strings.Count(haystack, needle)
}

// scoreLanguage implements the weighted hit formula:
// score = 2*keywordHits + 3*patternHits + 5*extensionMentions.
func scoreLanguage(lower string, original string, lp LanguagePattern, withExtensions bool) float64 {
	score := 0.0
	for _, kw := range lp.Keywords {
		score += 2 * float64(countOccurrences(lower, strings.ToLower(kw)))
	}
	for _, p := range lp.Patterns {
		score += 3 * float64(len(p.FindAllString(original, -1)))
	}
	if withExtensions {
		for _, ext := range lp.Extensions {
			score += 5 * float64(countOccurrences(lower, ext))
		}
	}
	return score
}

// DetectLanguages implements: top-3 languages with confidence
// >= 0.3.
func DetectLanguages(text string, table []LanguagePattern) []DetectedLanguage {
	lower := strings.ToLower(text)
	var out []DetectedLanguage
	for _, lp := range table {
		score := scoreLanguage(lower, text, lp, true)
		conf := math.Min(score/30, 1)
		if conf >= 0.3 {
			out = append(out, DetectedLanguage{Name: lp.Name, Confidence: conf})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// languageConfidenceFloor scores name's language table entry against text
// and floors the result at 0.3 (the node emit threshold), so a framework
// whose parent language scored under that threshold on its own still gets
// a materialized language node once the framework itself is detected.
func languageConfidenceFloor(text, name string, table []LanguagePattern) float64 {
	lower := strings.ToLower(text)
	for _, lp := range table {
		if lp.Name != name {
			continue
		}
		conf := math.Min(scoreLanguage(lower, text, lp, true)/30, 1)
		if conf < 0.3 {
			conf = 0.3
		}
		return conf
	}
	return 0.3
}

// rescoreLanguage picks the best-matching language for a code block whose
// declared language is blank/unknown, using only keyword+pattern weights
// (no extension bonus, since a snippet has no filename).
func rescoreLanguage(content string, table []LanguagePattern) string {
	lower := strings.ToLower(content)
	best := ""
	bestScore := 0.0
	for _, lp := range table {
		score := scoreLanguage(lower, content, lp, false)
		if score > bestScore {
			bestScore = score
			best = lp.Name
		}
	}
	return best
}

// DetectCodeBlocks implements: extract fenced blocks of
// length >= 10, rescoring blank/"unknown" declared languages.
func DetectCodeBlocks(text string, table []LanguagePattern) []DetectedCodeBlock {
	matches := fencedCodeBlockPattern.FindAllStringSubmatch(text, -1)
	var out []DetectedCodeBlock
	for _, m := range matches {
		lang := strings.ToLower(strings.TrimSpace(m[1]))
		content := m[2]
		if len(strings.TrimSpace(content)) < 10 {
			continue
		}
		if lang == "" || lang == "unknown" {
			lang = rescoreLanguage(content, table)
		}
		truncated := content
		if len(truncated) > 500 {
			truncated = truncated[:500]
		}
		out = append(out, DetectedCodeBlock{Language: lang, Content: truncated, FullLength: len(content)})
	}
	return out
}

// DetectFrameworks implements: per-language indicator hit
// counting, top-5 overall by confidence, confidence >= 0.4.
func DetectFrameworks(text string, table []FrameworkPattern) []DetectedFramework {
	lower := strings.ToLower(text)
	seen := map[string]bool{}
	var out []DetectedFramework
	for _, fp := range table {
		if seen[fp.Name] {
			continue
		}
		hits := 0
		for _, ind := range fp.Indicators {
			hits += countOccurrences(lower, strings.ToLower(ind))
		}
		if hits < 1 {
			continue
		}
		conf := math.Min(float64(hits)/float64(len(fp.Indicators))+0.3, 1)
		if conf >= 0.4 {
			seen[fp.Name] = true
			out = append(out, DetectedFramework{Name: fp.Name, Language: fp.Language, Confidence: conf})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

// DetectTopics implements: >= 2 keyword hits required,
// confidence = min(hits/|keywords| + 0.2, 1), top-3.
func DetectTopics(text string, table []TopicPattern) []DetectedTopic {
	lower := strings.ToLower(text)
	var out []DetectedTopic
	for _, tp := range table {
		hits := 0
		for _, kw := range tp.Keywords {
			hits += countOccurrences(lower, strings.ToLower(kw))
		}
		if hits < 2 {
			continue
		}
		conf := math.Min(float64(hits)/float64(len(tp.Keywords))+0.2, 1)
		out = append(out, DetectedTopic{Name: tp.Name, Confidence: conf})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// DetectErrors implements: up to 3 matches per signature,
// ±100/+200 char context, dedupe by exact message, keep top 5 by
// importance.
func DetectErrors(text string, table []ErrorSignature) []DetectedError {
	var all []DetectedError
	seen := map[string]bool{}
	for _, sig := range table {
		locs := sig.Pattern.FindAllStringIndex(text, 3)
		for _, loc := range locs {
			msg := text[loc[0]:loc[1]]
			if seen[msg] {
				continue
			}
			seen[msg] = true
			start := loc[0] - 100
			if start < 0 {
				start = 0
			}
			end := loc[1] + 200
			if end > len(text) {
				end = len(text)
			}
			all = append(all, DetectedError{
				Type:       sig.Type,
				Message:    msg,
				Context:    text[start:end],
				Importance: sig.Importance,
			})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Importance > all[j].Importance })
	if len(all) > 5 {
		all = all[:5]
	}
	return all
}

func dedupeCapped(items []string, cap int) []string {
	seen := map[string]bool{}
	var out []string
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
		if len(out) >= cap {
			break
		}
	}
	return out
}

// DetectEntities implements: file mentions, function defs,
// PascalCase class mentions (excluding the stop list), and URLs, each
// deduped and capped at 10.
func DetectEntities(text string) DetectedEntities {
	files := fileMentionPattern.FindAllString(text, -1)
	urls := urlPattern.FindAllString(text, -1)

	var funcs []string
	for _, m := range functionDefPattern.FindAllStringSubmatch(text, -1) {
		funcs = append(funcs, m[1])
	}

	var classes []string
	for _, m := range classMentionPattern.FindAllString(text, -1) {
		if _, stop := classStopList[m]; stop {
			continue
		}
		classes = append(classes, m)
	}

	return DetectedEntities{
		Files:     dedupeCapped(files, 10),
		Functions: dedupeCapped(funcs, 10),
		Classes:   dedupeCapped(classes, 10),
		URLs:      dedupeCapped(urls, 10),
	}
}

// DetectGoals implements: intent regex templates, tail
// 5-100 chars, dedupe, top 3.
func DetectGoals(text string) []string {
	var goals []string
	seen := map[string]bool{}
	for _, p := range GoalIntentPatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			tail := strings.TrimSpace(m[1])
			if len(tail) < 5 {
				continue
			}
			if len(tail) > 100 {
				tail = tail[:100]
			}
			if seen[tail] {
				continue
			}
			seen[tail] = true
			goals = append(goals, tail)
			if len(goals) >= 3 {
				return goals
			}
		}
	}
	return goals
}
