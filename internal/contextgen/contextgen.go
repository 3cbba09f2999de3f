// Package contextgen renders a compact textual summary of the graph for
// prompt injection, under a platform token budget.
package contextgen

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"memcore/internal/graph"
)

// Strategy names one of the five serialization strategies.
type Strategy string

const (
	StrategyMinimal    Strategy = "minimal"
	StrategyStructured Strategy = "structured"
	StrategyNarrative  Strategy = "narrative"
	StrategySystem     Strategy = "system"
	StrategyCustom     Strategy = "custom"
)

// PlatformBudgets maps a platform name to its token budget (
// "Truncation"). "default" covers any platform not listed.
var PlatformBudgets = map[string]int{
	"chatgpt":     1500,
	"claude":      2000,
	"perplexity":  1000,
	"gemini":      1500,
	"poe":         1000,
	"copilot":     800,
	"bing":        600,
	"you":         800,
	"huggingface": 500,
	"grok":        1000,
	"default":     1000,
}

func budgetFor(platform string) int {
	if b, ok := PlatformBudgets[platform]; ok {
		return b
	}
	return PlatformBudgets["default"]
}

// Options configures one Generate call.
type Options struct {
	Strategy Strategy
	Platform string
	Template string // only read when Strategy == StrategyCustom
	Now      time.Time
}

// Result is the Context Generator's return payload.
type Result struct {
	Text        string    `json:"text"`
	Tokens      int       `json:"tokens"`
	Strategy    Strategy  `json:"strategy"`
	Platform    string    `json:"platform"`
	NodeCount   int       `json:"nodeCount"`
	GeneratedAt time.Time `json:"generatedAt"`
	Metadata    buckets   `json:"metadata"`
}

// buckets is the common top-N selection pulled from the graph, shared by
// every strategy.
type buckets struct {
	Languages  []string `json:"languages"`
	Frameworks []string `json:"frameworks"`
	Errors     []string `json:"errors"`
	Goals      []string `json:"goals"`
	Topics     []string `json:"topics"`
	Files      []string `json:"files"`
	Code       []string `json:"code"`
}

// Generator reads a Graph on demand to render prompt-injection context.
type Generator struct{}

// New builds a Generator.
func New() *Generator { return &Generator{} }

func topContent(nodes []*graph.Node, at time.Time, n int) []string {
	sort.Slice(nodes, func(i, j int) bool {
		return graph.RelevanceScore(nodes[i], at) > graph.RelevanceScore(nodes[j], at)
	})
	if len(nodes) > n {
		nodes = nodes[:n]
	}
	out := make([]string, 0, len(nodes))
	for _, nd := range nodes {
		if s, ok := nd.Content.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func nodesOfType(g *graph.Graph, t graph.NodeType, since time.Duration, at time.Time) []*graph.Node {
	all := g.Query(graph.Criteria{Types: []graph.NodeType{t}})
	if since <= 0 {
		return all
	}
	cutoff := at.Add(-since)
	out := all[:0:0]
	for _, nd := range all {
		if nd.Metadata.CreatedAt.After(cutoff) {
			out = append(out, nd)
		}
	}
	return out
}

func gatherBuckets(g *graph.Graph, at time.Time, errorWindow time.Duration) buckets {
	langs := topContent(g.Query(graph.Criteria{Types: []graph.NodeType{graph.NodeLanguage}}), at, 3)
	frameworks := topContent(g.Query(graph.Criteria{Types: []graph.NodeType{graph.NodeFramework}}), at, 3)
	errs := topContent(nodesOfType(g, graph.NodeError, errorWindow, at), at, 2)
	for i, e := range errs {
		if len(e) > 100 {
			errs[i] = e[:100]
		}
	}
	goals := topContent(g.Query(graph.Criteria{Types: []graph.NodeType{graph.NodeGoal}}), at, 2)
	topics := topContent(g.Query(graph.Criteria{Types: []graph.NodeType{graph.NodeTopic}}), at, 3)
	files := topContent(g.Query(graph.Criteria{Types: []graph.NodeType{graph.NodeFile}}), at, 5)
	code := topContent(g.Query(graph.Criteria{Types: []graph.NodeType{graph.NodeCodeBlock}}), at, 3)

	return buckets{
		Languages: langs, Frameworks: frameworks, Errors: errs,
		Goals: goals, Topics: topics, Files: files, Code: code,
	}
}

func first(xs []string) string {
	if len(xs) == 0 {
		return ""
	}
	return xs[0]
}

// truncate implements "Truncation": cut to maxTokens*4 chars at
// the nearest word boundary, with a trailing ellipsis.
func truncate(text string, maxTokens int) string {
	limit := maxTokens * 4
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndexAny(cut, " \n\t"); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " \n\t") + "…"
}

func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func renderMinimal(b buckets, recentError string) string {
	parts := []string{}
	if l := first(b.Languages); l != "" {
		parts = append(parts, "language="+l)
	}
	if f := first(b.Frameworks); f != "" {
		parts = append(parts, "framework="+f)
	}
	if recentError != "" {
		parts = append(parts, "error="+recentError)
	}
	if g := first(b.Goals); g != "" {
		parts = append(parts, "goal="+g)
	}
	return strings.Join(parts, "; ")
}

func renderStructured(b buckets) string {
	var sb strings.Builder
	sb.WriteString("{\n")
	fmt.Fprintf(&sb, "  \"languages\": %s,\n", jsonList(b.Languages))
	fmt.Fprintf(&sb, "  \"frameworks\": %s,\n", jsonList(b.Frameworks))
	fmt.Fprintf(&sb, "  \"errors\": %s,\n", jsonList(b.Errors))
	fmt.Fprintf(&sb, "  \"goals\": %s,\n", jsonList(b.Goals))
	fmt.Fprintf(&sb, "  \"topics\": %s,\n", jsonList(b.Topics))
	fmt.Fprintf(&sb, "  \"files\": %s\n", jsonList(b.Files))
	sb.WriteString("}")
	return sb.String()
}

func jsonList(xs []string) string {
	if len(xs) == 0 {
		return "[]"
	}
	quoted := make([]string, len(xs))
	for i, x := range xs {
		quoted[i] = fmt.Sprintf("%q", x)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func renderNarrative(b buckets, hasRecentError bool) string {
	var sb strings.Builder
	if l := first(b.Languages); l != "" {
		sb.WriteString("Working in " + l)
		if f := first(b.Frameworks); f != "" {
			sb.WriteString(" with " + f)
		}
		sb.WriteString(". ")
	}
	if t := first(b.Topics); t != "" {
		sb.WriteString("The discussion centers on " + t + ". ")
	}
	if hasRecentError {
		if e := first(b.Errors); e != "" {
			sb.WriteString("Currently hitting: " + e + ". ")
		}
	}
	if goal := first(b.Goals); goal != "" {
		sb.WriteString("The goal is to " + goal + ".")
	}
	return strings.TrimSpace(sb.String())
}

func renderSystem(b buckets) string {
	var sb strings.Builder
	sb.WriteString("<work_context>\n")
	fmt.Fprintf(&sb, "  <primary_language>%s</primary_language>\n", first(b.Languages))
	fmt.Fprintf(&sb, "  <tech_stack>%s</tech_stack>\n", strings.Join(b.Frameworks, ", "))
	fmt.Fprintf(&sb, "  <current_task>%s</current_task>\n", first(b.Goals))
	fmt.Fprintf(&sb, "  <working_files>%s</working_files>\n", strings.Join(b.Files, ", "))
	if len(b.Code) > 0 {
		snippet := b.Code[0]
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		fmt.Fprintf(&sb, "  <recent_code>%s</recent_code>\n", snippet)
	}
	if e := first(b.Errors); e != "" {
		fmt.Fprintf(&sb, "  <issue>%s</issue>\n", e)
	}
	sb.WriteString("</work_context>")
	return sb.String()
}

var customPlaceholder = map[string]func(b buckets) string{
	"language":   func(b buckets) string { return first(b.Languages) },
	"languages":  func(b buckets) string { return strings.Join(b.Languages, ", ") },
	"framework":  func(b buckets) string { return first(b.Frameworks) },
	"frameworks": func(b buckets) string { return strings.Join(b.Frameworks, ", ") },
	"error":      func(b buckets) string { return first(b.Errors) },
	"goal":       func(b buckets) string { return first(b.Goals) },
	"goals":      func(b buckets) string { return strings.Join(b.Goals, ", ") },
	"topic":      func(b buckets) string { return first(b.Topics) },
	"topics":     func(b buckets) string { return strings.Join(b.Topics, ", ") },
	"files":      func(b buckets) string { return strings.Join(b.Files, ", ") },
	"code":       func(b buckets) string { return first(b.Code) },
}

func renderCustom(template string, b buckets) string {
	out := template
	for key, fn := range customPlaceholder {
		out = strings.ReplaceAll(out, "{{"+key+"}}", fn(b))
	}
	return out
}

// Generate implements: render the requested strategy, truncate
// to the platform's token budget, and return the full payload.
func (gen *Generator) Generate(g *graph.Graph, opts Options) Result {
	at := opts.Now
	if at.IsZero() {
		at = time.Now()
	}
	b := gatherBuckets(g, at, 24*time.Hour)

	var text string
	switch opts.Strategy {
	case StrategyMinimal:
		recent := topContent(nodesOfType(g, graph.NodeError, 2*time.Hour, at), at, 1)
		text = renderMinimal(b, first(recent))
	case StrategyNarrative:
		hasRecent := len(nodesOfType(g, graph.NodeError, 4*time.Hour, at)) > 0
		text = renderNarrative(b, hasRecent)
	case StrategySystem:
		text = renderSystem(b)
	case StrategyCustom:
		text = renderCustom(opts.Template, b)
	case StrategyStructured:
		fallthrough
	default:
		opts.Strategy = StrategyStructured
		text = renderStructured(b)
	}

	budget := budgetFor(opts.Platform)
	text = truncate(text, budget)

	return Result{
		Text:        text,
		Tokens:      estimateTokens(text),
		Strategy:    opts.Strategy,
		Platform:    opts.Platform,
		NodeCount:   g.NodeCount(),
		GeneratedAt: at,
		Metadata:    b,
	}
}

// VariableBinding is one resolved value in a mapToVariables result.
type VariableBinding struct {
	Value        string `json:"value"`
	Confidence   float64 `json:"confidence"`
	Source       string `json:"source"`
	AutoDetected bool   `json:"autoDetected"`
}

// variableEquivalence groups requested field names into the node-type
// bucket that answers them ( equivalence classes).
var variableEquivalence = map[string]graph.NodeType{
	"language": graph.NodeLanguage, "lang": graph.NodeLanguage,
	"framework": graph.NodeFramework, "library": graph.NodeFramework, "stack": graph.NodeFramework, "tech": graph.NodeFramework,
	"error": graph.NodeError, "exception": graph.NodeError, "bug": graph.NodeError, "issue": graph.NodeError,
	"code": graph.NodeCodeBlock, "snippet": graph.NodeCodeBlock, "source": graph.NodeCodeBlock,
	"goal": graph.NodeGoal, "task": graph.NodeGoal, "objective": graph.NodeGoal,
	"topic": graph.NodeTopic, "context": graph.NodeTopic, "domain": graph.NodeTopic,
	"file": graph.NodeFile, "filename": graph.NodeFile, "path": graph.NodeFile,
	"function": graph.NodeFunction, "method": graph.NodeFunction, "func": graph.NodeFunction,
	"class": graph.NodeClass, "component": graph.NodeClass,
}

// MapToVariables implements mapToVariables: a 24h-windowed
// query resolving each requested name to its highest-relevance matching
// node, tagged with provenance.
func MapToVariables(g *graph.Graph, names []string, at time.Time) map[string]VariableBinding {
	if at.IsZero() {
		at = time.Now()
	}
	cutoff := at.Add(-24 * time.Hour)
	out := make(map[string]VariableBinding, len(names))
	for _, name := range names {
		t, ok := variableEquivalence[strings.ToLower(name)]
		if !ok {
			continue
		}
		candidates := g.Query(graph.Criteria{Types: []graph.NodeType{t}})
		var best *graph.Node
		bestScore := -1.0
		for _, nd := range candidates {
			if nd.Metadata.CreatedAt.Before(cutoff) {
				continue
			}
			score := graph.RelevanceScore(nd, at)
			if score > bestScore {
				bestScore = score
				best = nd
			}
		}
		if best == nil {
			continue
		}
		val, _ := best.Content.(string)
		out[name] = VariableBinding{
			Value:        val,
			Confidence:   best.Confidence,
			Source:       "memory_graph",
			AutoDetected: true,
		}
	}
	return out
}
