package extract

import (
	"testing"

	"github.com/dshills/codeindex/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userSource = `package testpkg

import (
	"fmt"
	str "strings"
)

// User represents a user in the system
type User struct {
	ID   int
	Name string
}

// Reader reads
type Reader interface {
	Read(p []byte) (n int, err error)
}

type ID = string

const (
	MaxUsers = 10
	minUsers = 1
)

var defaultName string

// GetName returns the user's name
func (u *User) GetName() string {
	return u.Name
}

// NewUser creates a new user
func NewUser(id int, name string) *User {
	fmt.Println(str.ToUpper(name))
	return &User{ID: id, Name: name}
}
`

func byName(res *Result) map[string]types.Entity {
	out := make(map[string]types.Entity)
	for _, e := range res.Entities {
		out[e.Name] = e
	}
	return out
}

func TestExtract_GoEntities(t *testing.T) {
	res, err := New().Extract("pkg/user.go", []byte(userSource), "go")
	require.NoError(t, err)
	assert.False(t, res.HasErrors())
	assert.Equal(t, "testpkg", res.Package)

	ents := byName(res)
	tests := []struct {
		name string
		kind types.SymbolKind
	}{
		{"pkg/user.go", types.KindFile},
		{"testpkg", types.KindPackage},
		{"User", types.KindStruct},
		{"Reader", types.KindInterface},
		{"ID", types.KindType},
		{"MaxUsers", types.KindConst},
		{"minUsers", types.KindConst},
		{"defaultName", types.KindVar},
		{"User.GetName", types.KindMethod},
		{"NewUser", types.KindFunction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := ents[tt.name]
			require.True(t, ok, "missing entity %s", tt.name)
			assert.Equal(t, tt.kind, e.Kind)
			assert.NotEmpty(t, e.ID)
			assert.Equal(t, "pkg/user.go", e.FilePath)
			assert.Equal(t, "go", e.Language)
		})
	}

	assert.Len(t, res.Symbols(), 8)
}

func TestExtract_GoSpans(t *testing.T) {
	res, err := New().Extract("user.go", []byte(userSource), "go")
	require.NoError(t, err)
	ents := byName(res)

	// Doc comment is part of the declaration span.
	user := ents["User"]
	assert.Equal(t, 8, user.StartLine)
	assert.Equal(t, 12, user.EndLine)

	// Grouped constants span only their own spec.
	assert.Equal(t, 22, ents["MaxUsers"].StartLine)
	assert.Equal(t, 22, ents["MaxUsers"].EndLine)

	method := ents["User.GetName"]
	assert.Equal(t, 28, method.StartLine)
	assert.Equal(t, 31, method.EndLine)
	assert.Equal(t, "func (*User) GetName() string", method.Signature)

	assert.Equal(t, "func NewUser(id int, name string) *User", ents["NewUser"].Signature)
	assert.Equal(t, "type ID = string", ents["ID"].Signature)
}

func TestExtract_GoRelations(t *testing.T) {
	res, err := New().Extract("user.go", []byte(userSource), "go")
	require.NoError(t, err)
	ents := byName(res)
	fileID := ents["user.go"].ID

	var imports []string
	var methodOf *types.Relation
	contains := 0
	for i, r := range res.Relations {
		switch r.Kind {
		case types.RelationImports:
			assert.Equal(t, fileID, r.SourceID)
			assert.Empty(t, r.TargetID)
			imports = append(imports, r.TargetName)
		case types.RelationMethodOf:
			methodOf = &res.Relations[i]
		case types.RelationContains:
			assert.Equal(t, fileID, r.SourceID)
			contains++
		}
	}

	assert.ElementsMatch(t, []string{"fmt", "strings"}, imports)
	require.NotNil(t, methodOf)
	assert.Equal(t, ents["User.GetName"].ID, methodOf.SourceID)
	assert.Equal(t, ents["User"].ID, methodOf.TargetID)
	// package + eight declarations
	assert.Equal(t, 9, contains)
}

func TestExtract_ImportAlias(t *testing.T) {
	src := `package main

import (
	. "fmt"
	str "strings"
	_ "database/sql"
)

func test() {}
`
	res, err := New().Extract("main.go", []byte(src), "go")
	require.NoError(t, err)
	require.Len(t, res.Imports, 3)

	aliases := make(map[string]string)
	for _, imp := range res.Imports {
		aliases[imp.Path] = imp.Alias
	}
	assert.Equal(t, ".", aliases["fmt"])
	assert.Equal(t, "str", aliases["strings"])
	assert.Equal(t, "_", aliases["database/sql"])
}

func TestExtract_SyntaxError(t *testing.T) {
	src := `package main

func ok() {}

func incomplete( {
}
`
	res, err := New().Extract("bad.go", []byte(src), "go")
	require.NoError(t, err)
	require.True(t, res.HasErrors())
	assert.Contains(t, res.Errors[0], "syntax error")

	// The file node is always present.
	assert.Equal(t, types.KindFile, res.Entities[0].Kind)
}

func TestExtract_GenericReceiver(t *testing.T) {
	src := `package list

type List[T any] struct{ items []T }

func (l *List[T]) Len() int { return len(l.items) }
`
	res, err := New().Extract("list.go", []byte(src), "go")
	require.NoError(t, err)
	ents := byName(res)
	require.Contains(t, ents, "List.Len")
	assert.Equal(t, types.KindMethod, ents["List.Len"].Kind)
}

func TestExtract_Patterns(t *testing.T) {
	tests := []struct {
		lang string
		src  string
		want map[string]types.SymbolKind
	}{
		{
			lang: "typescript",
			src: `export class Indexer {}
export async function build(root: string) {}
const handler = async (req) => {}
interface Options {}
`,
			want: map[string]types.SymbolKind{
				"Indexer": types.KindClass,
				"build":   types.KindFunction,
				"handler": types.KindFunction,
				"Options": types.KindInterface,
			},
		},
		{
			lang: "python",
			src: `class Store:
    def get(self, key):
        pass

async def main():
    pass
`,
			want: map[string]types.SymbolKind{
				"Store": types.KindClass,
				"get":   types.KindFunction,
				"main":  types.KindFunction,
			},
		},
		{
			lang: "rust",
			src: `pub struct Index {}
pub(crate) fn open() {}
trait Store {}
`,
			want: map[string]types.SymbolKind{
				"Index": types.KindStruct,
				"open":  types.KindFunction,
				"Store": types.KindInterface,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			res, err := New().Extract("src/file", []byte(tt.src), tt.lang)
			require.NoError(t, err)

			got := make(map[string]types.SymbolKind)
			for _, e := range res.Symbols() {
				got[e.Name] = e.Kind
			}
			assert.Equal(t, tt.want, got)
			assert.Len(t, res.Relations, len(tt.want))
		})
	}
}

func TestExtract_UnknownLanguage(t *testing.T) {
	res, err := New().Extract("README.md", []byte("# Title\n"), "markdown")
	require.NoError(t, err)
	assert.Len(t, res.Entities, 1)
	assert.Empty(t, res.Relations)
	assert.False(t, SupportsLanguage("markdown"))
	assert.True(t, SupportsLanguage("go"))
}

func TestExtract_EmptyPath(t *testing.T) {
	_, err := New().Extract("", nil, "go")
	assert.ErrorIs(t, err, types.ErrEmptyPath)
}
