package language

import (
	"path/filepath"
	"strings"
)

// Language is a detected source language tag
type Language string

const (
	Unknown    Language = ""
	Go         Language = "go"
	Python     Language = "python"
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	TSX        Language = "tsx"
	Rust       Language = "rust"
	Java       Language = "java"
	Kotlin     Language = "kotlin"
	C          Language = "c"
	CPP        Language = "cpp"
	CSharp     Language = "csharp"
	Swift      Language = "swift"
	Scala      Language = "scala"
	PHP        Language = "php"
	Ruby       Language = "ruby"
	Shell      Language = "shell"
	Lua        Language = "lua"
	SQL        Language = "sql"
	Vue        Language = "vue"
	Svelte     Language = "svelte"
)

// Family groups languages whose declarations look alike, for heuristic chunking
type Family string

const (
	FamilyPython  Family = "python"
	FamilyCLike   Family = "c-like"
	FamilyRuby    Family = "ruby"
	FamilyGeneric Family = "generic"
)

var extensions = map[string]Language{
	".go":     Go,
	".py":     Python,
	".pyi":    Python,
	".js":     JavaScript,
	".jsx":    JavaScript,
	".mjs":    JavaScript,
	".cjs":    JavaScript,
	".ts":     TypeScript,
	".mts":    TypeScript,
	".tsx":    TSX,
	".rs":     Rust,
	".java":   Java,
	".kt":     Kotlin,
	".kts":    Kotlin,
	".c":      C,
	".h":      C,
	".cc":     CPP,
	".cpp":    CPP,
	".cxx":    CPP,
	".hpp":    CPP,
	".cs":     CSharp,
	".swift":  Swift,
	".scala":  Scala,
	".php":    PHP,
	".rb":     Ruby,
	".sh":     Shell,
	".bash":   Shell,
	".zsh":    Shell,
	".lua":    Lua,
	".sql":    SQL,
	".vue":    Vue,
	".svelte": Svelte,
}

var interpreters = map[string]Language{
	"python":  Python,
	"python3": Python,
	"node":    JavaScript,
	"ruby":    Ruby,
	"bash":    Shell,
	"sh":      Shell,
	"zsh":     Shell,
	"lua":     Lua,
	"php":     PHP,
}

// Detect returns the language of a file from its extension, falling back to
// the shebang line of content. Unknown is returned when neither matches.
func Detect(path, content string) Language {
	if lang, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return fromShebang(content)
}

// FromExtension returns the language for an extension such as ".py"
func FromExtension(ext string) (Language, bool) {
	lang, ok := extensions[strings.ToLower(ext)]
	return lang, ok
}

func fromShebang(content string) Language {
	if !strings.HasPrefix(content, "#!") {
		return Unknown
	}
	line, _, _ := strings.Cut(content, "\n")
	fields := strings.Fields(strings.TrimPrefix(line, "#!"))
	if len(fields) == 0 {
		return Unknown
	}
	interp := filepath.Base(fields[0])
	if interp == "env" && len(fields) > 1 {
		interp = fields[1]
	}
	return interpreters[interp]
}

// FamilyOf returns the heuristic family of a language
func FamilyOf(lang Language) Family {
	switch lang {
	case Python:
		return FamilyPython
	case Ruby:
		return FamilyRuby
	case Go, JavaScript, TypeScript, TSX, Rust, Java, Kotlin, C, CPP, CSharp, Swift, Scala, PHP, Vue, Svelte:
		return FamilyCLike
	default:
		return FamilyGeneric
	}
}

// FenceTag returns the markdown code-fence tag for the language
func FenceTag(lang Language) string {
	switch lang {
	case Unknown:
		return ""
	case CSharp:
		return "cs"
	default:
		return string(lang)
	}
}
