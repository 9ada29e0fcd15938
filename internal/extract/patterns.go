package extract

import (
	"bufio"
	"bytes"
	"regexp"

	"github.com/dshills/codeindex/pkg/types"
)

type pattern struct {
	re   *regexp.Regexp
	kind types.SymbolKind
}

// Line patterns for languages without a native parser. Each captures the
// declared name in group 1. End lines are unknown, so entities span one line.
var languagePatterns = map[string][]pattern{
	"typescript": jsPatterns,
	"javascript": jsPatterns,
	"python":     pythonPatterns,
	"rust":       rustPatterns,
	"java":       javaPatterns,
	"ruby":       rubyPatterns,
}

var pythonPatterns = []pattern{
	{regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)`), types.KindFunction},
	{regexp.MustCompile(`^\s*class\s+([A-Za-z_]\w*)`), types.KindClass},
}

var rustPatterns = []pattern{
	{regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+([A-Za-z_]\w*)`), types.KindFunction},
	{regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:struct|enum)\s+([A-Za-z_]\w*)`), types.KindStruct},
	{regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?trait\s+([A-Za-z_]\w*)`), types.KindInterface},
}

var javaPatterns = []pattern{
	{regexp.MustCompile(`^\s*(?:(?:public|protected|private|abstract|final|static)\s+)*class\s+([A-Za-z_]\w*)`), types.KindClass},
	{regexp.MustCompile(`^\s*(?:(?:public|protected|private)\s+)*interface\s+([A-Za-z_]\w*)`), types.KindInterface},
}

var rubyPatterns = []pattern{
	{regexp.MustCompile(`^\s*def\s+(?:self\.)?([A-Za-z_]\w*[?!]?)`), types.KindFunction},
	{regexp.MustCompile(`^\s*(?:class|module)\s+([A-Z]\w*)`), types.KindClass},
}

var jsPatterns = []pattern{
	{regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\*?\s+([A-Za-z_$][\w$]*)`), types.KindFunction},
	{regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s*)?(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*=>`), types.KindFunction},
	{regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`), types.KindClass},
	{regexp.MustCompile(`^\s*(?:export\s+)?interface\s+([A-Za-z_$][\w$]*)`), types.KindInterface},
}

// SupportsLanguage reports whether entities can be extracted for language
func SupportsLanguage(language string) bool {
	if language == "go" {
		return true
	}
	_, ok := languagePatterns[language]
	return ok
}

func extractPatterns(res *Result, fileID string, content []byte) {
	pats, ok := languagePatterns[res.Language]
	if !ok {
		return
	}

	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		for _, p := range pats {
			m := p.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			e := types.Entity{
				Name:      m[1],
				Kind:      p.kind,
				FilePath:  res.FilePath,
				Language:  res.Language,
				Signature: text,
				StartLine: line,
				EndLine:   line,
			}
			e.ID = types.EntityID(e.FilePath, e.Kind, e.Name, line)
			res.Entities = append(res.Entities, e)
			res.Relations = append(res.Relations, types.Relation{
				SourceID:   fileID,
				TargetID:   e.ID,
				TargetName: e.Name,
				Kind:       types.RelationContains,
				FilePath:   res.FilePath,
			})
			break
		}
	}
}
