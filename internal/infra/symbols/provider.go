package symbols

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
)

// Provider extracts analyzable units (functions, methods, constructors)
// from a document with tree-sitter. Declarations without a body and
// destructor-style names are filtered out.
type Provider struct {
	languages map[string]*sitter.Language
}

func NewProvider() *Provider {
	return &Provider{
		languages: map[string]*sitter.Language{
			"go":         golang.GetLanguage(),
			"python":     python.GetLanguage(),
			"javascript": javascript.GetLanguage(),
		},
	}
}

// Units parses doc.Text and returns its units in source order.
func (p *Provider) Units(ctx context.Context, doc analysis.Document) ([]analysis.Unit, error) {
	langName := normalizeLanguage(doc.Language)
	lang, ok := p.languages[langName]
	if !ok {
		return nil, fmt.Errorf("unsupported language %q", doc.Language)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	content := []byte(doc.Text)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", doc.URI, err)
	}
	defer tree.Close()

	var units []analysis.Unit
	walk(tree.RootNode(), false, func(node *sitter.Node, inClass bool) {
		unit, ok := extract(langName, node, inClass, content)
		if !ok {
			return
		}
		unit.DocumentID = doc.URI
		unit.Language = langName
		units = append(units, unit)
	})
	return units, nil
}

func normalizeLanguage(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "go", "golang":
		return "go"
	case "python", "py":
		return "python"
	case "javascript", "js", "javascriptreact":
		return "javascript"
	default:
		return strings.ToLower(strings.TrimSpace(lang))
	}
}

// walk visits every node, tracking whether the subtree sits inside a class
// body so function definitions can be classified as methods.
func walk(node *sitter.Node, inClass bool, visit func(*sitter.Node, bool)) {
	visit(node, inClass)
	childInClass := inClass || node.Type() == "class_definition" || node.Type() == "class_declaration" || node.Type() == "class_body"
	for i := 0; i < int(node.ChildCount()); i++ {
		walk(node.Child(i), childInClass, visit)
	}
}

func extract(lang string, node *sitter.Node, inClass bool, content []byte) (analysis.Unit, bool) {
	var kind analysis.UnitKind
	switch lang {
	case "go":
		switch node.Type() {
		case "function_declaration":
			kind = analysis.KindFunction
		case "method_declaration":
			kind = analysis.KindMethod
		default:
			return analysis.Unit{}, false
		}
	case "python":
		if node.Type() != "function_definition" {
			return analysis.Unit{}, false
		}
		kind = analysis.KindFunction
		if inClass {
			kind = analysis.KindMethod
		}
	case "javascript":
		switch node.Type() {
		case "function_declaration", "generator_function_declaration":
			kind = analysis.KindFunction
		case "method_definition":
			kind = analysis.KindMethod
		default:
			return analysis.Unit{}, false
		}
	default:
		return analysis.Unit{}, false
	}

	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return analysis.Unit{}, false
	}
	name := nameNode.Content(content)

	// pure declarations (no body) are not analyzable units
	if node.ChildByFieldName("body") == nil {
		return analysis.Unit{}, false
	}
	if isDestructor(lang, name) {
		return analysis.Unit{}, false
	}
	if isConstructor(lang, name, kind) {
		kind = analysis.KindConstructor
	}

	return analysis.Unit{
		Name:      name,
		Kind:      kind,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Text:      string(content[node.StartByte():node.EndByte()]),
	}, true
}

func isDestructor(lang, name string) bool {
	switch lang {
	case "python":
		return name == "__del__"
	default:
		return strings.HasPrefix(name, "~")
	}
}

func isConstructor(lang, name string, kind analysis.UnitKind) bool {
	if kind != analysis.KindMethod {
		return false
	}
	switch lang {
	case "python":
		return name == "__init__"
	case "javascript":
		return name == "constructor"
	default:
		return false
	}
}
