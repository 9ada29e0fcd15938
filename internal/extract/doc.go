// Package extract builds graph entities and relations from source files.
//
// Go files are parsed with go/parser. Every top-level function, method, type,
// const and var becomes an entity; the file contains them, methods point at
// their receiver type with a method_of edge, and each import becomes an
// imports edge to a target that lives outside the index.
//
//	x := extract.New()
//	res, err := x.Extract("internal/auth/user.go", src, "go")
//	for _, e := range res.Symbols() {
//	    fmt.Println(e.Kind, e.Name, e.StartLine)
//	}
//
// Syntax errors do not fail extraction: they are recorded in Result.Errors and
// whatever the parser recovered is still returned.
//
// Other languages are handled with line patterns that find function and class
// declarations only.
package extract
