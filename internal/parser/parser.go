package parser

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/dshills/afterimage-mcp/pkg/types"
)

// ErrUnsupportedLanguage is returned when no structural grammar exists for a language
var ErrUnsupportedLanguage = errors.New("no structural parser for language")

// Parser extracts top-level declarations from Go source using go/ast.
// It holds no per-file state and is safe for concurrent use.
type Parser struct{}

// New creates a new Parser instance
func New() *Parser {
	return &Parser{}
}

// ParseSource parses Go source held in memory. Syntax errors are recorded on
// the result rather than returned; the symbols recovered from the partial AST
// are kept so callers can decide whether to trust them.
func (p *Parser) ParseSource(filePath string, src []byte) (*types.ParseResult, error) {
	result := &types.ParseResult{Language: "go"}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, src, parser.ParseComments)
	if err != nil {
		result.AddError(filePath, 0, 0, fmt.Sprintf("syntax error: %v", err))
	}
	if file == nil {
		return result, nil
	}

	extractor := &symbolExtractor{
		fset:    fset,
		symbols: make([]types.Symbol, 0, len(file.Decls)),
	}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			extractor.extractFunction(d)
		case *ast.GenDecl:
			extractor.extractGenDecl(d)
		}
	}
	result.Symbols = extractor.symbols

	return result, nil
}

// symbolExtractor collects symbols for the top-level declarations of one file
type symbolExtractor struct {
	fset    *token.FileSet
	symbols []types.Symbol
}

// extractFunction extracts function and method declarations
func (e *symbolExtractor) extractFunction(funcDecl *ast.FuncDecl) {
	sym := types.Symbol{
		Name:  funcDecl.Name.Name,
		Kind:  types.KindFunction,
		Start: e.startOf(funcDecl.Pos(), funcDecl.Doc),
		End:   e.positionFromToken(funcDecl.End()),
	}

	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		sym.Kind = types.KindMethod
		sym.Parent = e.extractReceiverType(funcDecl.Recv.List[0].Type)
	}

	sym.Signature = e.extractFunctionSignature(funcDecl)
	e.symbols = append(e.symbols, sym)
}

// extractGenDecl turns import, const/var and type declarations into one
// symbol per declaration statement. Grouped declarations stay together.
func (e *symbolExtractor) extractGenDecl(genDecl *ast.GenDecl) {
	sym := types.Symbol{
		Start: e.startOf(genDecl.Pos(), genDecl.Doc),
		End:   e.positionFromToken(genDecl.End()),
	}

	switch genDecl.Tok {
	case token.IMPORT:
		sym.Kind = types.KindImport
		sym.Signature = "import"
	case token.CONST, token.VAR:
		sym.Kind = types.KindConst
		sym.Name = strings.Join(e.valueNames(genDecl), ", ")
		sym.Signature = genDecl.Tok.String() + " " + sym.Name
	case token.TYPE:
		sym.Kind = types.KindClass
		names := make([]string, 0, len(genDecl.Specs))
		for _, spec := range genDecl.Specs {
			if ts, ok := spec.(*ast.TypeSpec); ok {
				names = append(names, ts.Name.Name)
				if sym.Signature == "" {
					sym.Signature = e.extractTypeSignature(ts)
				}
			}
		}
		sym.Name = strings.Join(names, ", ")
	default:
		return
	}

	e.symbols = append(e.symbols, sym)
}

func (e *symbolExtractor) valueNames(genDecl *ast.GenDecl) []string {
	var names []string
	for _, spec := range genDecl.Specs {
		if vs, ok := spec.(*ast.ValueSpec); ok {
			for _, name := range vs.Names {
				names = append(names, name.Name)
			}
		}
	}
	return names
}

// extractReceiverType extracts the receiver type name from a method
func (e *symbolExtractor) extractReceiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return e.extractReceiverType(t.X)
	case *ast.IndexExpr:
		return e.extractReceiverType(t.X)
	case *ast.IndexListExpr:
		return e.extractReceiverType(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

// extractFunctionSignature builds a function signature string
func (e *symbolExtractor) extractFunctionSignature(funcDecl *ast.FuncDecl) string {
	var sig strings.Builder

	sig.WriteString("func ")

	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		sig.WriteString("(")
		sig.WriteString(e.exprToString(funcDecl.Recv.List[0].Type))
		sig.WriteString(") ")
	}

	sig.WriteString(funcDecl.Name.Name)

	sig.WriteString("(")
	if funcDecl.Type.Params != nil {
		sig.WriteString(e.fieldListToString(funcDecl.Type.Params))
	}
	sig.WriteString(")")

	if funcDecl.Type.Results != nil {
		results := e.fieldListToString(funcDecl.Type.Results)
		if results != "" {
			if funcDecl.Type.Results.NumFields() > 1 {
				sig.WriteString(" (")
				sig.WriteString(results)
				sig.WriteString(")")
			} else {
				sig.WriteString(" ")
				sig.WriteString(results)
			}
		}
	}

	return sig.String()
}

func (e *symbolExtractor) extractTypeSignature(typeSpec *ast.TypeSpec) string {
	switch t := typeSpec.Type.(type) {
	case *ast.StructType:
		fields := 0
		if t.Fields != nil {
			fields = t.Fields.NumFields()
		}
		return fmt.Sprintf("type %s struct { ... } // %d fields", typeSpec.Name.Name, fields)
	case *ast.InterfaceType:
		methods := 0
		if t.Methods != nil {
			methods = t.Methods.NumFields()
		}
		return fmt.Sprintf("type %s interface { ... } // %d methods", typeSpec.Name.Name, methods)
	default:
		return fmt.Sprintf("type %s %s", typeSpec.Name.Name, e.exprToString(typeSpec.Type))
	}
}

// fieldListToString converts a field list to a string representation
func (e *symbolExtractor) fieldListToString(fieldList *ast.FieldList) string {
	if fieldList == nil || len(fieldList.List) == 0 {
		return ""
	}

	var parts []string
	for _, field := range fieldList.List {
		typeStr := e.exprToString(field.Type)
		if len(field.Names) > 0 {
			for _, name := range field.Names {
				parts = append(parts, fmt.Sprintf("%s %s", name.Name, typeStr))
			}
		} else {
			parts = append(parts, typeStr)
		}
	}

	return strings.Join(parts, ", ")
}

// exprToString converts an expression to a short string representation
func (e *symbolExtractor) exprToString(expr ast.Expr) string {
	if expr == nil {
		return ""
	}

	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + e.exprToString(t.X)
	case *ast.ArrayType:
		return "[]" + e.exprToString(t.Elt)
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", e.exprToString(t.Key), e.exprToString(t.Value))
	case *ast.ChanType:
		return "chan " + e.exprToString(t.Value)
	case *ast.FuncType:
		return "func(...)"
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.SelectorExpr:
		return e.exprToString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + e.exprToString(t.Elt)
	case *ast.IndexExpr:
		return e.exprToString(t.X) + "[" + e.exprToString(t.Index) + "]"
	default:
		return "..."
	}
}

// startOf returns the declaration start, moved up to its doc comment
func (e *symbolExtractor) startOf(pos token.Pos, doc *ast.CommentGroup) types.Position {
	if doc != nil && doc.Pos() < pos {
		pos = doc.Pos()
	}
	return e.positionFromToken(pos)
}

// positionFromToken converts a token position to our Position type
func (e *symbolExtractor) positionFromToken(pos token.Pos) types.Position {
	position := e.fset.Position(pos)
	return types.Position{
		Line:   position.Line,
		Column: position.Column,
	}
}
