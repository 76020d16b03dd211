package document

import (
	"path/filepath"
	"strings"
)

// PlainText is the language of documents whose type is unknown.
const PlainText = "plaintext"

var extLanguages = map[string]string{
	".c":          "c",
	".h":          "c",
	".cc":         "cpp",
	".cpp":        "cpp",
	".hpp":        "cpp",
	".cs":         "csharp",
	".css":        "css",
	".scss":       "scss",
	".less":       "less",
	".go":         "go",
	".html":       "html",
	".htm":        "html",
	".java":       "java",
	".js":         "javascript",
	".mjs":        "javascript",
	".cjs":        "javascript",
	".jsx":        "javascript",
	".ts":         "typescript",
	".tsx":        "typescript",
	".json":       "json",
	".lua":        "lua",
	".md":         "markdown",
	".markdown":   "markdown",
	".php":        "php",
	".py":         "python",
	".rb":         "ruby",
	".rs":         "rust",
	".sh":         "shell",
	".bash":       "shell",
	".sql":        "sql",
	".swift":      "swift",
	".kt":         "kotlin",
	".xml":        "xml",
	".svg":        "xml",
	".yaml":       "yaml",
	".yml":        "yaml",
	".toml":       "ini",
	".ini":        "ini",
	".txt":        PlainText,
	".dockerfile": "dockerfile",
}

var nameLanguages = map[string]string{
	"dockerfile": "dockerfile",
	"makefile":   "makefile",
}

// InferLanguage returns the language for a file name, or PlainText.
func InferLanguage(name string) string {
	base := strings.ToLower(filepath.Base(strings.TrimSpace(name)))
	if lang, ok := nameLanguages[base]; ok {
		return lang
	}
	if lang, ok := extLanguages[filepath.Ext(base)]; ok {
		return lang
	}
	return PlainText
}

// NormalizeLanguage returns language, falling back to the inferred language
// of name and then PlainText.
func NormalizeLanguage(language, name string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if language != "" {
		return language
	}
	return InferLanguage(name)
}
