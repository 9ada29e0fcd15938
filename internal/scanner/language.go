package scanner

import (
	"path"
	"strings"
)

var extensionToLanguage = map[string]string{
	".go":       "go",
	".py":       "python",
	".pyi":      "python",
	".ts":       "typescript",
	".tsx":      "typescript",
	".mts":      "typescript",
	".js":       "javascript",
	".jsx":      "javascript",
	".mjs":      "javascript",
	".cjs":      "javascript",
	".java":     "java",
	".kt":       "kotlin",
	".rs":       "rust",
	".c":        "c",
	".h":        "c",
	".cpp":      "cpp",
	".cc":       "cpp",
	".hpp":      "cpp",
	".cs":       "csharp",
	".rb":       "ruby",
	".php":      "php",
	".swift":    "swift",
	".scala":    "scala",
	".sh":       "shell",
	".bash":     "shell",
	".sql":      "sql",
	".proto":    "protobuf",
	".yaml":     "yaml",
	".yml":      "yaml",
	".json":     "json",
	".toml":     "toml",
	".md":       "markdown",
	".markdown": "markdown",
	".html":     "html",
	".css":      "css",
	".vue":      "vue",
	".svelte":   "svelte",
	".lua":      "lua",
	".tf":       "terraform",
}

var filenameToLanguage = map[string]string{
	"Dockerfile": "dockerfile",
	"Makefile":   "makefile",
	"Gemfile":    "ruby",
	"Rakefile":   "ruby",
}

// DetectLanguage returns the language for a file name, or "" when the file
// is not indexable.
func DetectLanguage(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if lang, ok := filenameToLanguage[base]; ok {
		return lang
	}
	return extensionToLanguage[strings.ToLower(path.Ext(base))]
}
