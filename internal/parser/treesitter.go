//go:build cgo

package parser

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/dshills/afterimage-mcp/internal/language"
	"github.com/dshills/afterimage-mcp/pkg/types"
)

// TreeSitter extracts top-level declarations for languages with a tree-sitter
// grammar. A new sitter parser is created per call, so the value is safe for
// concurrent use.
type TreeSitter struct{}

// NewTreeSitter creates a tree-sitter backed parser
func NewTreeSitter() *TreeSitter {
	return &TreeSitter{}
}

// Supports reports whether a grammar is compiled in for lang
func (ts *TreeSitter) Supports(lang language.Language) bool {
	_, err := grammar(lang)
	return err == nil
}

// Parse parses src and returns its top-level symbols. Classes are reported
// together with their methods (Parent set to the class name). A tree
// containing syntax errors is reported through result.Errors.
func (ts *TreeSitter) Parse(ctx context.Context, filePath string, src []byte, lang language.Language) (*types.ParseResult, error) {
	tsLang, err := grammar(lang)
	if err != nil {
		return nil, err
	}

	p := sitter.NewParser()
	p.SetLanguage(tsLang)
	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}

	root := tree.RootNode()
	result := &types.ParseResult{Language: string(lang)}
	if root.HasError() {
		result.AddError(filePath, 0, 0, "syntax error in tree")
	}

	w := &treeWalker{src: src, lang: lang}
	w.walkTopLevel(root)
	result.Symbols = w.symbols

	return result, nil
}

func grammar(lang language.Language) (*sitter.Language, error) {
	switch lang {
	case language.Python:
		return python.GetLanguage(), nil
	case language.JavaScript:
		return javascript.GetLanguage(), nil
	case language.TypeScript:
		return typescript.GetLanguage(), nil
	case language.TSX:
		return tsx.GetLanguage(), nil
	case language.Rust:
		return rust.GetLanguage(), nil
	case language.Java:
		return java.GetLanguage(), nil
	case language.Kotlin:
		return kotlin.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
}

type treeWalker struct {
	src     []byte
	lang    language.Language
	symbols []types.Symbol
}

func (w *treeWalker) walkTopLevel(root *sitter.Node) {
	count := int(root.NamedChildCount())
	for i := 0; i < count; i++ {
		node := root.NamedChild(i)
		if node == nil {
			continue
		}
		w.visitTopLevel(node, w.leadingComments(root, i))
	}
}

// leadingComments returns the first row of the comment run directly above
// the i-th named child, or -1 when there is none.
func (w *treeWalker) leadingComments(parent *sitter.Node, i int) int {
	first := -1
	expect := int(parent.NamedChild(i).StartPoint().Row)
	for j := i - 1; j >= 0; j-- {
		prev := parent.NamedChild(j)
		if prev == nil || !isComment(prev.Type()) {
			break
		}
		if int(prev.EndPoint().Row) < expect-1 {
			break
		}
		first = int(prev.StartPoint().Row)
		expect = first
	}
	return first
}

func isComment(nodeType string) bool {
	return nodeType == "comment" || nodeType == "line_comment" || nodeType == "block_comment" ||
		nodeType == "multiline_comment"
}

func (w *treeWalker) visitTopLevel(node *sitter.Node, commentRow int) {
	outer := node
	decl := w.unwrap(node)
	kind, ok := w.classify(decl)
	if !ok {
		return
	}

	sym := types.Symbol{
		Kind:      kind,
		Name:      w.nameOf(decl, kind),
		Signature: w.firstLine(decl),
		Start:     w.startPosition(outer, commentRow),
		End:       types.Position{Line: int(outer.EndPoint().Row) + 1},
	}
	if kind == types.KindFunction && sym.Name == "" {
		return
	}
	w.symbols = append(w.symbols, sym)

	if kind == types.KindClass {
		w.visitMethods(decl, sym.Name)
	}
}

// unwrap strips export statements and decorators down to the declaration
func (w *treeWalker) unwrap(node *sitter.Node) *sitter.Node {
	switch node.Type() {
	case "export_statement":
		if d := node.ChildByFieldName("declaration"); d != nil {
			return w.unwrap(d)
		}
	case "decorated_definition":
		if d := node.ChildByFieldName("definition"); d != nil {
			return d
		}
	}
	return node
}

func (w *treeWalker) classify(node *sitter.Node) (types.SymbolKind, bool) {
	switch node.Type() {
	case "import_statement", "import_from_statement", "future_import_statement",
		"use_declaration", "extern_crate_declaration",
		"import_declaration", "package_declaration",
		"import_list", "import_header", "package_header":
		return types.KindImport, true
	case "function_definition", "function_declaration", "generator_function_declaration", "function_item":
		return types.KindFunction, true
	case "class_definition", "class_declaration", "abstract_class_declaration",
		"interface_declaration", "enum_declaration", "record_declaration", "type_alias_declaration",
		"struct_item", "enum_item", "trait_item", "impl_item", "mod_item", "union_item",
		"object_declaration":
		return types.KindClass, true
	case "const_item", "static_item", "property_declaration":
		return types.KindConst, true
	case "lexical_declaration", "variable_declaration":
		if w.declaresFunction(node) {
			return types.KindFunction, true
		}
		return types.KindConst, true
	case "expression_statement":
		if child := node.NamedChild(0); child != nil && child.Type() == "assignment" {
			return types.KindConst, true
		}
	}
	return "", false
}

// declaresFunction reports whether a JS/TS variable declaration binds an
// arrow function or function expression.
func (w *treeWalker) declaresFunction(node *sitter.Node) bool {
	count := int(node.NamedChildCount())
	for i := 0; i < count; i++ {
		decl := node.NamedChild(i)
		if decl == nil || decl.Type() != "variable_declarator" {
			continue
		}
		if value := decl.ChildByFieldName("value"); value != nil {
			switch value.Type() {
			case "arrow_function", "function", "function_expression", "generator_function":
				return true
			}
		}
	}
	return false
}

func (w *treeWalker) nameOf(node *sitter.Node, kind types.SymbolKind) string {
	switch kind {
	case types.KindImport:
		return ""
	case types.KindConst:
		return w.assignedName(node)
	}

	if n := node.ChildByFieldName("name"); n != nil {
		return n.Content(w.src)
	}
	// JS/TS arrow functions bound to a variable
	if node.Type() == "lexical_declaration" || node.Type() == "variable_declaration" {
		return w.assignedName(node)
	}
	// Rust impl blocks name the implemented type
	if t := node.ChildByFieldName("type"); t != nil {
		return t.Content(w.src)
	}
	count := int(node.NamedChildCount())
	for i := 0; i < count; i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "identifier", "simple_identifier", "type_identifier":
			return child.Content(w.src)
		}
	}
	return ""
}

func (w *treeWalker) assignedName(node *sitter.Node) string {
	if node.Type() == "expression_statement" {
		node = node.NamedChild(0)
	}
	if node == nil {
		return ""
	}
	if left := node.ChildByFieldName("left"); left != nil {
		return left.Content(w.src)
	}
	count := int(node.NamedChildCount())
	for i := 0; i < count; i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		if n := child.ChildByFieldName("name"); n != nil {
			return n.Content(w.src)
		}
		if child.Type() == "variable_declaration" {
			return w.assignedName(child)
		}
		if child.Type() == "simple_identifier" || child.Type() == "identifier" {
			return child.Content(w.src)
		}
	}
	return ""
}

func (w *treeWalker) visitMethods(class *sitter.Node, className string) {
	body := classBody(class)
	if body == nil {
		return
	}

	count := int(body.NamedChildCount())
	for i := 0; i < count; i++ {
		node := body.NamedChild(i)
		if node == nil {
			continue
		}
		decl := w.unwrap(node)
		if !isMethodNode(decl.Type()) {
			continue
		}
		var name string
		if n := decl.ChildByFieldName("name"); n != nil {
			name = n.Content(w.src)
		} else {
			name = w.nameOf(decl, types.KindFunction)
		}
		if name == "" {
			continue
		}
		w.symbols = append(w.symbols, types.Symbol{
			Kind:      types.KindMethod,
			Name:      name,
			Parent:    className,
			Signature: w.firstLine(decl),
			Start:     w.startPosition(node, w.leadingComments(body, i)),
			End:       types.Position{Line: int(node.EndPoint().Row) + 1},
		})
	}
}

func classBody(class *sitter.Node) *sitter.Node {
	if body := class.ChildByFieldName("body"); body != nil {
		return body
	}
	count := int(class.NamedChildCount())
	for i := 0; i < count; i++ {
		child := class.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "class_body", "declaration_list", "block", "enum_class_body", "interface_body", "enum_body":
			return child
		}
	}
	return nil
}

func isMethodNode(nodeType string) bool {
	switch nodeType {
	case "function_definition", "method_definition", "function_item",
		"method_declaration", "constructor_declaration", "function_declaration":
		return true
	}
	return false
}

func (w *treeWalker) startPosition(node *sitter.Node, commentRow int) types.Position {
	row := int(node.StartPoint().Row)
	if commentRow >= 0 && commentRow < row {
		row = commentRow
	}
	return types.Position{Line: row + 1, Column: int(node.StartPoint().Column) + 1}
}

func (w *treeWalker) firstLine(node *sitter.Node) string {
	line, _, _ := strings.Cut(node.Content(w.src), "\n")
	return strings.TrimSpace(line)
}
