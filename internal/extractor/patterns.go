// Package extractor derives graph entities and relationships from raw
// conversation text via pattern matching. The pattern tables below are
// plain data so they can be extended without touching the detection
// logic; they're Go literals here rather than an external config file
// since the core ships no config-reload mechanism, but tests can
// substitute synthetic tables by building an Extractor with its own
// Languages/Frameworks/Errors/Topics fields.
package extractor

import "regexp"

// LanguagePattern scores how strongly a text blob suggests one language.
type LanguagePattern struct {
	Name       string
	Keywords   []string
	Patterns   []*regexp.Regexp
	Extensions []string
}

// FrameworkPattern is a framework tied to one language's indicator words.
type FrameworkPattern struct {
	Name       string
	Language   string
	Indicators []string
}

// ErrorSignature matches one class of error message.
type ErrorSignature struct {
	Type       string
	Pattern    *regexp.Regexp
	Importance float64
}

// TopicPattern matches a conversational topic by keyword co-occurrence.
type TopicPattern struct {
	Name     string
	Keywords []string
}

func rx(pattern string) *regexp.Regexp { return regexp.MustCompile(pattern) }

// DefaultLanguages is the built-in language detection table.
var DefaultLanguages = []LanguagePattern{
	{
		Name:       "python",
		Keywords:   []string{"def ", "import ", "self.", "elif", "python", "pip install", "__init__"},
		Patterns:   []*regexp.Regexp{rx(`(?i)\bdef\s+\w+\(`), rx(`(?i)\bimport\s+\w+`)},
		Extensions: []string{".py"},
	},
	{
		Name:       "javascript",
		Keywords:   []string{"const ", "let ", "function", "=>", "require(", "npm install", "console.log"},
		Patterns:   []*regexp.Regexp{rx(`(?i)\bfunction\s+\w+\(`), rx(`=>\s*\{`)},
		Extensions: []string{".js", ".mjs", ".cjs"},
	},
	{
		Name:       "typescript",
		Keywords:   []string{"interface ", "type ", ": string", ": number", "implements", "typescript"},
		Patterns:   []*regexp.Regexp{rx(`(?i)\binterface\s+\w+`), rx(`:\s*(string|number|boolean)\b`)},
		Extensions: []string{".ts", ".tsx"},
	},
	{
		Name:       "go",
		Keywords:   []string{"func ", "package ", "go mod", "goroutine", ":= ", "fmt.Println"},
		Patterns:   []*regexp.Regexp{rx(`(?i)\bfunc\s+\w+\(`), rx(`(?i)\bpackage\s+\w+`)},
		Extensions: []string{".go"},
	},
	{
		Name:       "java",
		Keywords:   []string{"public class", "private ", "static void main", "extends ", "implements "},
		Patterns:   []*regexp.Regexp{rx(`(?i)\bpublic\s+(static\s+)?class\s+\w+`)},
		Extensions: []string{".java"},
	},
	{
		Name:       "rust",
		Keywords:   []string{"fn ", "let mut", "impl ", "cargo", "::new(", "match "},
		Patterns:   []*regexp.Regexp{rx(`(?i)\bfn\s+\w+\(`), rx(`(?i)\blet\s+mut\s+\w+`)},
		Extensions: []string{".rs"},
	},
	{
		Name:       "sql",
		Keywords:   []string{"select ", "from ", "where ", "insert into", "create table"},
		Patterns:   []*regexp.Regexp{rx(`(?i)\bselect\s+.+\s+from\b`)},
		Extensions: []string{".sql"},
	},
}

// DefaultFrameworks is the built-in framework detection table, keyed by
// the language it belongs to.
var DefaultFrameworks = []FrameworkPattern{
	{Name: "django", Language: "python", Indicators: []string{"django", "models.Model", "urls.py", "views.py", "settings.py"}},
	{Name: "flask", Language: "python", Indicators: []string{"flask", "@app.route", "Flask(__name__)"}},
	{Name: "fastapi", Language: "python", Indicators: []string{"fastapi", "@app.get", "FastAPI()"}},
	{Name: "react", Language: "javascript", Indicators: []string{"react", "useState", "useEffect", "jsx", "component"}},
	{Name: "vue", Language: "javascript", Indicators: []string{"vue", "v-if", "v-for", "ref(", "computed("}},
	{Name: "express", Language: "javascript", Indicators: []string{"express", "app.get(", "app.listen("}},
	{Name: "nextjs", Language: "typescript", Indicators: []string{"next.js", "getServerSideProps", "app/page.tsx"}},
	{Name: "gin", Language: "go", Indicators: []string{"gin.Default", "gin.Context", "gin-gonic"}},
	{Name: "echo", Language: "go", Indicators: []string{"echo.New", "labstack/echo"}},
	{Name: "spring", Language: "java", Indicators: []string{"spring boot", "@RestController", "@Autowired"}},
	{Name: "actix", Language: "rust", Indicators: []string{"actix-web", "HttpServer::new"}},
}

// DefaultErrors is the built-in error signature table.
var DefaultErrors = []ErrorSignature{
	{Type: "TypeError", Pattern: rx(`(?i)TypeError[:\s][^\n]*`), Importance: 0.7},
	{Type: "SyntaxError", Pattern: rx(`(?i)SyntaxError[:\s][^\n]*`), Importance: 0.6},
	{Type: "NullPointerException", Pattern: rx(`(?i)NullPointerException[^\n]*`), Importance: 0.7},
	{Type: "ReferenceError", Pattern: rx(`(?i)ReferenceError[:\s][^\n]*`), Importance: 0.6},
	{Type: "IndexError", Pattern: rx(`(?i)IndexError[:\s][^\n]*`), Importance: 0.5},
	{Type: "KeyError", Pattern: rx(`(?i)KeyError[:\s][^\n]*`), Importance: 0.5},
	{Type: "ImportError", Pattern: rx(`(?i)(Import|ModuleNotFound)Error[:\s][^\n]*`), Importance: 0.6},
	{Type: "panic", Pattern: rx(`(?i)panic:\s*[^\n]*`), Importance: 0.8},
	{Type: "segfault", Pattern: rx(`(?i)segmentation fault[^\n]*`), Importance: 0.9},
	{Type: "compile_error", Pattern: rx(`(?i)(compile|compilation) error[^\n]*`), Importance: 0.6},
}

// DefaultTopics is the built-in topic detection table.
var DefaultTopics = []TopicPattern{
	{Name: "web development", Keywords: []string{"api", "rest", "http", "frontend", "backend", "web app", "endpoint"}},
	{Name: "database", Keywords: []string{"database", "sql", "query", "schema", "migration", "index", "table"}},
	{Name: "testing", Keywords: []string{"test", "unit test", "mock", "assertion", "coverage", "tdd"}},
	{Name: "deployment", Keywords: []string{"deploy", "docker", "kubernetes", "ci/cd", "pipeline", "production"}},
	{Name: "performance", Keywords: []string{"performance", "optimize", "slow", "latency", "benchmark", "profiling"}},
	{Name: "security", Keywords: []string{"security", "vulnerability", "auth", "encryption", "injection", "xss"}},
	{Name: "architecture", Keywords: []string{"architecture", "design pattern", "microservice", "monolith", "scalability"}},
	{Name: "debugging", Keywords: []string{"debug", "breakpoint", "stack trace", "traceback", "log", "error"}},
}

// FileExtensionLanguage maps a recognized file extension to the language
// name used in DefaultLanguages, for the `file --uses--> language` edge.
var FileExtensionLanguage = map[string]string{
	".py": "python", ".js": "javascript", ".mjs": "javascript", ".cjs": "javascript",
	".ts": "typescript", ".tsx": "typescript", ".go": "go", ".java": "java",
	".rs": "rust", ".sql": "sql", ".rb": "ruby", ".php": "php", ".c": "c",
	".cpp": "cpp", ".cs": "csharp", ".kt": "kotlin", ".swift": "swift",
}

// GoalIntentPatterns are the small set of intent regex templates used to
// spot a user stating what they're trying to do.
var GoalIntentPatterns = []*regexp.Regexp{
	rx(`(?i)\bi want to\s+(.{5,100})`),
	rx(`(?i)\b(?:build|fix|implement)\s+(.{5,100})`),
	rx(`(?i)\bworking on\s+(.{5,100})`),
}

// classStopList excludes common multi-cap acronym-ish words from the
// PascalCase class-mention heuristic.
var classStopList = map[string]struct{}{
	"JavaScript": {}, "TypeScript": {}, "PostgreSQL": {}, "GraphQL": {},
	"MySQL": {}, "NoSQL": {}, "OAuth": {}, "JSON": {}, "HTML": {}, "CSS": {},
}

var (
	fencedCodeBlockPattern = rx("(?s)```([a-zA-Z0-9_+-]*)\\n(.*?)```")
	urlPattern             = rx(`https?://[^\s)\]"']+`)
	fileMentionPattern     = rx(`\b[\w./-]+\.(py|js|mjs|cjs|ts|tsx|go|java|rs|sql|rb|php|c|cpp|cs|kt|swift)\b`)
	functionDefPattern     = rx(`(?i)\b(?:def|fn|func|fun|function)\s+([A-Za-z_]\w*)\s*\(`)
	classMentionPattern    = rx(`\b([A-Z][a-z0-9]+(?:[A-Z][a-z0-9]+)+)\b`)
)
