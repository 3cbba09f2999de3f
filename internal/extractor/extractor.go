package extractor

import (
	"errors"
	"path"
	"strings"

	"memcore/internal/graph"
	"memcore/internal/logging"
)

// ErrTextTooShort is returned when the input text is below the minimum
// length the detectors can usefully score.
var ErrTextTooShort = errors.New("extractor: text too short")

const minTextLength = 20

// Options carries the per-call context the extractor needs to attribute
// materialized nodes and session side effects.
type Options struct {
	Platform string
	Source   string
}

// Report is everything one Extract call found and wrote into the graph.
type Report struct {
	Languages  []DetectedLanguage
	Frameworks []DetectedFramework
	Errors     []DetectedError
	Topics     []DetectedTopic
	CodeBlocks []DetectedCodeBlock
	Entities   DetectedEntities
	Goals      []string

	Nodes []*graph.Node
	Edges []*graph.Edge
}

// Extractor holds the (possibly test-injected) pattern tables used for
// detection; the zero value is not usable, use New.
type Extractor struct {
	Languages  []LanguagePattern
	Frameworks []FrameworkPattern
	Errors     []ErrorSignature
	Topics     []TopicPattern
}

// New builds an Extractor over the built-in pattern tables.
func New() *Extractor {
	return &Extractor{
		Languages:  DefaultLanguages,
		Frameworks: DefaultFrameworks,
		Errors:     DefaultErrors,
		Topics:     DefaultTopics,
	}
}

// Extract implements: runs every detector over text, writes the
// resulting nodes/edges into g, updates the active session's counters, and
// returns everything found.
func (x *Extractor) Extract(g *graph.Graph, text string, opts Options) (*Report, error) {
	if len(strings.TrimSpace(text)) < minTextLength {
		return nil, ErrTextTooShort
	}
	log := logging.For("extractor")

	r := &Report{
		Languages:  DetectLanguages(text, x.Languages),
		Frameworks: DetectFrameworks(text, x.Frameworks),
		Errors:     DetectErrors(text, x.Errors),
		Topics:     DetectTopics(text, x.Topics),
		CodeBlocks: DetectCodeBlocks(text, x.Languages),
		Entities:   DetectEntities(text),
		Goals:      DetectGoals(text),
	}

	languageNodes := map[string]*graph.Node{}
	for _, l := range r.Languages {
		n := g.AddNodeWithAttrs(graph.NodeLanguage, l.Name, graph.AddNodeAttrs{
			Confidence: &l.Confidence, Source: opts.Source, Platform: opts.Platform,
		})
		languageNodes[l.Name] = n
		r.Nodes = append(r.Nodes, n)
	}

	var mostRecentCodeBlock *graph.Node
	for _, cb := range r.CodeBlocks {
		extra := map[string]any{"fullLength": cb.FullLength, "language": cb.Language}
		n := g.AddNodeWithAttrs(graph.NodeCodeBlock, cb.Content, graph.AddNodeAttrs{
			Source: opts.Source, Platform: opts.Platform, Extra: extra,
		})
		r.Nodes = append(r.Nodes, n)
		mostRecentCodeBlock = n

		// code_block --uses--> language
		if cb.Language != "" {
			langNode, ok := languageNodes[cb.Language]
			if !ok {
				conf := 0.5
				langNode = g.AddNodeWithAttrs(graph.NodeLanguage, cb.Language, graph.AddNodeAttrs{Confidence: &conf})
				languageNodes[cb.Language] = langNode
				r.Nodes = append(r.Nodes, langNode)
			}
			if e := g.AddEdge(n.ID, langNode.ID, graph.EdgeUses, graph.EdgeMetadata{}); e != nil {
				r.Edges = append(r.Edges, e)
			}
		}

		g.TouchActiveSession(func(s *graph.Session) {
			s.Counters.CodeBlockCount++
			if cb.Language != "" {
				s.PrimaryLanguage = cb.Language
			}
		})
	}

	frameworkNodes := map[string]*graph.Node{}
	for _, f := range r.Frameworks {
		n := g.AddNodeWithAttrs(graph.NodeFramework, f.Name, graph.AddNodeAttrs{
			Confidence: &f.Confidence, Source: opts.Source, Platform: opts.Platform,
		})
		frameworkNodes[f.Name] = n
		r.Nodes = append(r.Nodes, n)

		// framework --part_of--> language: a detected framework always
		// implies its parent language, even when the language's own
		// keyword/pattern score alone fell under the emit threshold.
		langNode, ok := languageNodes[f.Language]
		if !ok {
			conf := languageConfidenceFloor(text, f.Language, x.Languages)
			langNode = g.AddNodeWithAttrs(graph.NodeLanguage, f.Language, graph.AddNodeAttrs{
				Confidence: &conf, Source: opts.Source, Platform: opts.Platform,
			})
			languageNodes[f.Language] = langNode
			r.Nodes = append(r.Nodes, langNode)
			r.Languages = append(r.Languages, DetectedLanguage{Name: f.Language, Confidence: conf})
		}
		if e := g.AddEdge(n.ID, langNode.ID, graph.EdgePartOf, graph.EdgeMetadata{}); e != nil {
			r.Edges = append(r.Edges, e)
		}

		g.TouchActiveSession(func(s *graph.Session) { s.PrimaryFramework = f.Name })
	}

	for _, e := range r.Errors {
		imp := e.Importance
		n := g.AddNodeWithAttrs(graph.NodeError, e.Message, graph.AddNodeAttrs{
			Importance: &imp, Source: opts.Source, Platform: opts.Platform,
			Extra: map[string]any{"type": e.Type, "context": e.Context},
		})
		r.Nodes = append(r.Nodes, n)

		// error --related_to--> most-recent code_block
		if mostRecentCodeBlock != nil {
			if edge := g.AddEdge(n.ID, mostRecentCodeBlock.ID, graph.EdgeRelatedTo, graph.EdgeMetadata{}); edge != nil {
				r.Edges = append(r.Edges, edge)
			}
		}

		g.TouchActiveSession(func(s *graph.Session) { s.Counters.ErrorCount++ })
	}

	topicNodes := map[string]*graph.Node{}
	for _, t := range r.Topics {
		n := g.AddNodeWithAttrs(graph.NodeTopic, t.Name, graph.AddNodeAttrs{
			Confidence: &t.Confidence, Source: opts.Source, Platform: opts.Platform,
		})
		topicNodes[t.Name] = n
		r.Nodes = append(r.Nodes, n)
		g.TouchActiveSession(func(s *graph.Session) { s.PrimaryTopic = t.Name })
	}

	// topic --related_to--> primary language (the top-ranked detected
	// language, if any).
	if len(r.Languages) > 0 {
		primary := languageNodes[r.Languages[0].Name]
		for _, tn := range topicNodes {
			if primary != nil {
				if e := g.AddEdge(tn.ID, primary.ID, graph.EdgeRelatedTo, graph.EdgeMetadata{}); e != nil {
					r.Edges = append(r.Edges, e)
				}
			}
		}
	}

	for _, f := range r.Entities.Files {
		n := g.AddNode(graph.NodeFile, f, nil)
		r.Nodes = append(r.Nodes, n)
		ext := path.Ext(f)
		if lang, ok := FileExtensionLanguage[ext]; ok {
			langNode, ok := languageNodes[lang]
			if !ok {
				langNode = g.AddNode(graph.NodeLanguage, lang, nil)
				languageNodes[lang] = langNode
				r.Nodes = append(r.Nodes, langNode)
			}
			if e := g.AddEdge(n.ID, langNode.ID, graph.EdgeUses, graph.EdgeMetadata{}); e != nil {
				r.Edges = append(r.Edges, e)
			}
		}
	}
	for _, fn := range r.Entities.Functions {
		r.Nodes = append(r.Nodes, g.AddNode(graph.NodeFunction, fn, nil))
	}
	for _, c := range r.Entities.Classes {
		r.Nodes = append(r.Nodes, g.AddNode(graph.NodeClass, c, nil))
	}
	for _, u := range r.Entities.URLs {
		r.Nodes = append(r.Nodes, g.AddNode(graph.NodeURL, u, nil))
	}

	goalNodes := make([]*graph.Node, 0, len(r.Goals))
	for _, goalText := range r.Goals {
		n := g.AddNode(graph.NodeGoal, goalText, nil)
		r.Nodes = append(r.Nodes, n)
		goalNodes = append(goalNodes, n)
	}

	// goal <--related_to (bidirectional)--> topic, cartesian product.
	for _, gn := range goalNodes {
		for _, tn := range topicNodes {
			if e := g.AddBidirectionalEdge(gn.ID, tn.ID, graph.EdgeRelatedTo, graph.EdgeMetadata{}); e != nil {
				r.Edges = append(r.Edges, e)
			}
		}
	}

	log.Debug().
		Int("languages", len(r.Languages)).
		Int("frameworks", len(r.Frameworks)).
		Int("errors", len(r.Errors)).
		Int("topics", len(r.Topics)).
		Int("codeBlocks", len(r.CodeBlocks)).
		Int("goals", len(r.Goals)).
		Int("nodesWritten", len(r.Nodes)).
		Int("edgesWritten", len(r.Edges)).
		Msg("extraction complete")

	return r, nil
}
