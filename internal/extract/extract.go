package extract

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/dshills/codeindex/pkg/types"
)

// Import is a single import declaration of a Go file
type Import struct {
	Path  string
	Alias string
}

// Result holds everything extracted from one file
type Result struct {
	FilePath  string
	Language  string
	Package   string
	Imports   []Import
	Entities  []types.Entity
	Relations []types.Relation
	Errors    []string // Syntax errors; extraction continues on a partial AST
}

// HasErrors reports whether the source had syntax errors
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Symbols returns the entities that describe declarations, leaving out the
// file and package nodes.
func (r *Result) Symbols() []types.Entity {
	out := make([]types.Entity, 0, len(r.Entities))
	for _, e := range r.Entities {
		if e.Kind == types.KindFile || e.Kind == types.KindPackage {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Extractor turns source files into graph entities and relations
type Extractor struct{}

// New creates a new Extractor
func New() *Extractor {
	return &Extractor{}
}

// Extract parses content of the file at filePath (repo-relative). Go sources are
// parsed with go/parser; other languages go through line patterns. Syntax errors
// are recorded on the result rather than returned.
func (x *Extractor) Extract(filePath string, content []byte, language string) (*Result, error) {
	if filePath == "" {
		return nil, types.ErrEmptyPath
	}

	res := &Result{FilePath: filePath, Language: language}
	lines := strings.Count(string(content), "\n") + 1

	fileEntity := types.Entity{
		Name:      filePath,
		Kind:      types.KindFile,
		FilePath:  filePath,
		Language:  language,
		StartLine: 1,
		EndLine:   lines,
	}
	fileEntity.ID = types.EntityID(filePath, fileEntity.Kind, fileEntity.Name, 1)
	res.Entities = append(res.Entities, fileEntity)

	if language == "go" {
		x.extractGo(res, fileEntity.ID, content)
	} else {
		extractPatterns(res, fileEntity.ID, content)
	}

	return res, nil
}

func (x *Extractor) extractGo(res *Result, fileID string, content []byte) {
	// A fresh FileSet per file keeps memory flat across large trees.
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, res.FilePath, content, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("syntax error: %v", err))
	}
	if file == nil {
		return
	}

	g := &goExtractor{fset: fset, res: res, fileID: fileID, types: make(map[string]string)}

	if file.Name != nil && file.Name.Name != "" {
		res.Package = file.Name.Name
		pkg := g.add(types.KindPackage, file.Name.Name, "package "+file.Name.Name, file.Package, file.Name.End())
		g.relate(fileID, pkg, file.Name.Name, types.RelationContains)
	}

	for _, imp := range file.Imports {
		spec := Import{Path: strings.Trim(imp.Path.Value, `"`)}
		if imp.Name != nil {
			spec.Alias = imp.Name.Name
		}
		res.Imports = append(res.Imports, spec)
		g.relate(fileID, "", spec.Path, types.RelationImports)
	}

	// Types first so methods can resolve their receiver within the file.
	for _, decl := range file.Decls {
		if gen, ok := decl.(*ast.GenDecl); ok {
			g.genDecl(gen)
		}
	}
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok {
			g.funcDecl(fn)
		}
	}
}

type goExtractor struct {
	fset   *token.FileSet
	res    *Result
	fileID string
	types  map[string]string // type name -> entity ID
}

func (g *goExtractor) line(pos token.Pos) int {
	return g.fset.Position(pos).Line
}

func (g *goExtractor) add(kind types.SymbolKind, name, signature string, start, end token.Pos) string {
	e := types.Entity{
		Name:      name,
		Kind:      kind,
		FilePath:  g.res.FilePath,
		Language:  g.res.Language,
		Signature: signature,
		StartLine: g.line(start),
		EndLine:   g.line(end),
	}
	e.ID = types.EntityID(e.FilePath, kind, name, e.StartLine)
	g.res.Entities = append(g.res.Entities, e)
	return e.ID
}

func (g *goExtractor) relate(source, target, targetName string, kind types.RelationKind) {
	g.res.Relations = append(g.res.Relations, types.Relation{
		SourceID:   source,
		TargetID:   target,
		TargetName: targetName,
		Kind:       kind,
		FilePath:   g.res.FilePath,
	})
}

func (g *goExtractor) funcDecl(fn *ast.FuncDecl) {
	if fn.Name == nil {
		return
	}

	start := fn.Pos()
	if fn.Doc != nil {
		start = fn.Doc.Pos()
	}

	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		id := g.add(types.KindFunction, fn.Name.Name, funcSignature(fn), start, fn.End())
		g.relate(g.fileID, id, fn.Name.Name, types.RelationContains)
		return
	}

	recv := receiverType(fn.Recv.List[0].Type)
	name := fn.Name.Name
	if recv != "" {
		name = recv + "." + fn.Name.Name
	}
	id := g.add(types.KindMethod, name, funcSignature(fn), start, fn.End())
	g.relate(g.fileID, id, name, types.RelationContains)
	if recv != "" {
		g.relate(id, g.types[recv], recv, types.RelationMethodOf)
	}
}

func (g *goExtractor) genDecl(gen *ast.GenDecl) {
	for _, spec := range gen.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			g.typeSpec(gen, s)
		case *ast.ValueSpec:
			g.valueSpec(gen, s)
		}
	}
}

// span picks the source range of a spec. Ungrouped declarations include the
// keyword and doc comment so the chunk reads like the source.
func (g *goExtractor) span(gen *ast.GenDecl, spec ast.Spec, doc *ast.CommentGroup) (token.Pos, token.Pos) {
	if !gen.Lparen.IsValid() {
		start := gen.Pos()
		if gen.Doc != nil {
			start = gen.Doc.Pos()
		}
		return start, gen.End()
	}
	start := spec.Pos()
	if doc != nil {
		start = doc.Pos()
	}
	return start, spec.End()
}

func (g *goExtractor) typeSpec(gen *ast.GenDecl, s *ast.TypeSpec) {
	name := s.Name.Name
	kind := types.KindType
	sig := "type " + name

	switch t := s.Type.(type) {
	case *ast.StructType:
		kind = types.KindStruct
		sig = fmt.Sprintf("type %s struct { ... } // %d fields", name, t.Fields.NumFields())
	case *ast.InterfaceType:
		kind = types.KindInterface
		sig = fmt.Sprintf("type %s interface { ... } // %d methods", name, t.Methods.NumFields())
	default:
		if s.Assign.IsValid() {
			sig = fmt.Sprintf("type %s = %s", name, exprString(s.Type))
		} else {
			sig = fmt.Sprintf("type %s %s", name, exprString(s.Type))
		}
	}

	start, end := g.span(gen, s, s.Doc)
	id := g.add(kind, name, sig, start, end)
	g.types[name] = id
	g.relate(g.fileID, id, name, types.RelationContains)
}

func (g *goExtractor) valueSpec(gen *ast.GenDecl, s *ast.ValueSpec) {
	kind := types.KindVar
	if gen.Tok == token.CONST {
		kind = types.KindConst
	}

	start, end := g.span(gen, s, s.Doc)
	for _, n := range s.Names {
		if n.Name == "_" {
			continue
		}
		var sig string
		switch {
		case s.Type != nil:
			sig = fmt.Sprintf("%s %s %s", gen.Tok, n.Name, exprString(s.Type))
		case len(s.Values) > 0:
			sig = fmt.Sprintf("%s %s = ...", gen.Tok, n.Name)
		default:
			sig = fmt.Sprintf("%s %s", gen.Tok, n.Name)
		}
		id := g.add(kind, n.Name, sig, start, end)
		g.relate(g.fileID, id, n.Name, types.RelationContains)
	}
}

// receiverType extracts the receiver type name, dropping pointers and type parameters
func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	}
	return ""
}

func funcSignature(fn *ast.FuncDecl) string {
	var sig strings.Builder

	sig.WriteString("func ")
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		sig.WriteString("(")
		sig.WriteString(exprString(fn.Recv.List[0].Type))
		sig.WriteString(") ")
	}
	sig.WriteString(fn.Name.Name)

	sig.WriteString("(")
	sig.WriteString(fieldList(fn.Type.Params))
	sig.WriteString(")")

	if res := fn.Type.Results; res != nil && len(res.List) > 0 {
		out := fieldList(res)
		if res.NumFields() > 1 || len(res.List[0].Names) > 0 {
			sig.WriteString(" (" + out + ")")
		} else {
			sig.WriteString(" " + out)
		}
	}

	return sig.String()
}

func fieldList(fl *ast.FieldList) string {
	if fl == nil || len(fl.List) == 0 {
		return ""
	}

	var parts []string
	for _, f := range fl.List {
		typ := exprString(f.Type)
		if len(f.Names) == 0 {
			parts = append(parts, typ)
			continue
		}
		for _, n := range f.Names {
			parts = append(parts, n.Name+" "+typ)
		}
	}
	return strings.Join(parts, ", ")
}

func exprString(expr ast.Expr) string {
	switch t := expr.(type) {
	case nil:
		return ""
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	case *ast.ArrayType:
		if t.Len != nil {
			return "[" + exprString(t.Len) + "]" + exprString(t.Elt)
		}
		return "[]" + exprString(t.Elt)
	case *ast.BasicLit:
		return t.Value
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", exprString(t.Key), exprString(t.Value))
	case *ast.ChanType:
		return "chan " + exprString(t.Value)
	case *ast.FuncType:
		return "func(" + fieldList(t.Params) + ")"
	case *ast.InterfaceType:
		if t.Methods.NumFields() == 0 {
			return "interface{}"
		}
		return "interface{ ... }"
	case *ast.StructType:
		return "struct{ ... }"
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + exprString(t.Elt)
	case *ast.IndexExpr:
		return exprString(t.X) + "[" + exprString(t.Index) + "]"
	case *ast.IndexListExpr:
		args := make([]string, len(t.Indices))
		for i, ix := range t.Indices {
			args[i] = exprString(ix)
		}
		return exprString(t.X) + "[" + strings.Join(args, ", ") + "]"
	default:
		return "..."
	}
}
