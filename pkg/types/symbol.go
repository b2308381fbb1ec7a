package types

import "errors"

// SymbolKind represents the kind of top-level declaration a parser found
type SymbolKind string

const (
	KindFunction SymbolKind = "function"
	KindMethod   SymbolKind = "method"
	KindClass    SymbolKind = "class"
	KindImport   SymbolKind = "import"
	KindConst    SymbolKind = "const"
)

// Position represents a location in source code
type Position struct {
	Line   int
	Column int
}

// Symbol is a declaration extracted by a structural parser. Line positions are
// 1-based and inclusive; Start includes any attached doc comment or decorator.
type Symbol struct {
	Name      string
	Kind      SymbolKind
	Parent    string // enclosing class or receiver type for methods
	Signature string

	Start Position
	End   Position
}

// QualifiedName returns Parent.Name for methods and Name otherwise
func (s *Symbol) QualifiedName() string {
	if s.Parent != "" {
		return s.Parent + "." + s.Name
	}
	return s.Name
}

// ChunkType maps the symbol kind onto the unit type it produces
func (s *Symbol) ChunkType() ChunkType {
	switch s.Kind {
	case KindMethod:
		return ChunkMethod
	case KindClass:
		return ChunkClass
	case KindImport:
		return ChunkImports
	case KindConst:
		return ChunkConstants
	default:
		return ChunkFunction
	}
}

// Validate checks if the symbol is valid
func (s *Symbol) Validate() error {
	if s.Kind != KindImport && s.Kind != KindConst && s.Name == "" {
		return errors.New("symbol name cannot be empty")
	}
	if s.Start.Line <= 0 || s.End.Line < s.Start.Line {
		return errors.New("invalid symbol line range")
	}
	return nil
}
