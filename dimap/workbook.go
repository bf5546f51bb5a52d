// CLAUDE:SUMMARY Owned XML tree model of a Tableau .twb: parse, field catalog, reference scan, rename application, serialization.
package dimap

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// maxXMLDepth caps element nesting (XML bomb defense).
const maxXMLDepth = 256

type nodeKind int

const (
	nodeElem nodeKind = iota
	nodeText
	nodeComment
	nodeProcInst
	nodeDirective
)

// xmlNode is one node of the owned document tree. The tree is exclusively
// owned by its Workbook: remapping mutates this copy, never a live decoder
// stream, so scanning and rewriting can't alias each other.
type xmlNode struct {
	kind     nodeKind
	name     xml.Name
	attrs    []xml.Attr
	children []*xmlNode
	text     string // text/comment/directive content; ProcInst instruction
}

// FieldKind classifies a catalog field.
type FieldKind string

const (
	FieldDimension  FieldKind = "dimension"
	FieldMeasure    FieldKind = "measure"
	FieldCalculated FieldKind = "calculated"
	FieldUnknown    FieldKind = "unknown"
)

// FieldRole is the discrete/continuous axis of a field.
type FieldRole string

const (
	RoleDiscrete   FieldRole = "discrete"
	RoleContinuous FieldRole = "continuous"
	RoleUnknown    FieldRole = "unknown"
)

// FieldDescriptor is one field declared in the workbook's datasource catalog.
type FieldDescriptor struct {
	Name    string    `json:"name"`              // internal identifier, brackets stripped
	Caption string    `json:"caption,omitempty"` // display name
	Kind    FieldKind `json:"kind"`
	Role    FieldRole `json:"role"`
	Formula string    `json:"formula,omitempty"` // calculated fields only
}

// LocationRef identifies one place a field name occurs in the document tree.
type LocationRef struct {
	Path string `json:"path"`           // element path, e.g. /workbook/datasources/datasource[0]/column[2]
	Attr string `json:"attr,omitempty"` // attribute name; empty for text content
}

// Workbook is the parsed document: the owned XML tree plus the derived field
// catalog. The catalog and all reference scans are recomputed from the tree;
// nothing is persisted independently.
type Workbook struct {
	root     *xmlNode
	prolog   []*xmlNode        // nodes before the root element (XML decl, comments)
	nsPrefix map[string]string // namespace URL → declared prefix

	version     string
	datasources int
	worksheets  int
	hasSheets   bool

	fields   []FieldDescriptor
	byName   map[string]int
	dupes    []string        // catalog names declared more than once
	dsNames  map[string]bool // datasource name attributes
	captions map[string]bool // column caption attributes
}

// ParseWorkbook parses .twb bytes into an owned tree and derives the field
// catalog. It fails with ErrMalformedDocument for broken XML and
// ErrUnsupportedWorkbook when the root structure is not a Tableau workbook.
func ParseWorkbook(data []byte) (*Workbook, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	wb := &Workbook{nsPrefix: make(map[string]string)}
	var stack []*xmlNode

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) >= maxXMLDepth {
				return nil, fmt.Errorf("%w: nesting depth exceeds %d", ErrMalformedDocument, maxXMLDepth)
			}
			el := t.Copy()
			n := &xmlNode{kind: nodeElem, name: el.Name, attrs: el.Attr}
			for _, a := range n.attrs {
				if a.Name.Space == "xmlns" {
					wb.nsPrefix[a.Value] = a.Name.Local
				} else if a.Name.Space == "" && a.Name.Local == "xmlns" {
					wb.nsPrefix[a.Value] = ""
				}
			}
			if len(stack) == 0 {
				if wb.root != nil {
					return nil, fmt.Errorf("%w: multiple root elements", ErrMalformedDocument)
				}
				wb.root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: unbalanced end element", ErrMalformedDocument)
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			n := &xmlNode{kind: nodeText, text: string(t)}
			wb.attach(stack, n)

		case xml.Comment:
			n := &xmlNode{kind: nodeComment, text: string(t)}
			wb.attach(stack, n)

		case xml.ProcInst:
			n := &xmlNode{kind: nodeProcInst, name: xml.Name{Local: t.Target}, text: string(t.Inst)}
			wb.attach(stack, n)

		case xml.Directive:
			n := &xmlNode{kind: nodeDirective, text: string(t)}
			wb.attach(stack, n)
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: unclosed elements", ErrMalformedDocument)
	}
	if wb.root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedDocument)
	}
	if wb.root.name.Local != "workbook" {
		return nil, fmt.Errorf("%w: root element is <%s>, expected <workbook>", ErrUnsupportedWorkbook, wb.root.name.Local)
	}

	if err := wb.deriveCatalog(); err != nil {
		return nil, err
	}
	return wb, nil
}

func (wb *Workbook) attach(stack []*xmlNode, n *xmlNode) {
	if len(stack) == 0 {
		// Whitespace and comments outside the root; drop pure whitespace.
		if n.kind == nodeText && strings.TrimSpace(n.text) == "" {
			return
		}
		wb.prolog = append(wb.prolog, n)
		return
	}
	parent := stack[len(stack)-1]
	parent.children = append(parent.children, n)
}

// deriveCatalog rebuilds the field catalog and section counts from the tree.
// Called after parsing and again after renames are applied.
func (wb *Workbook) deriveCatalog() error {
	wb.version = attrValue(wb.root, "version")
	wb.fields = nil
	wb.byName = make(map[string]int)
	wb.dupes = nil
	wb.dsNames = make(map[string]bool)
	wb.captions = make(map[string]bool)
	wb.datasources = 0
	wb.worksheets = 0
	wb.hasSheets = false

	var datasources *xmlNode
	for _, c := range wb.root.children {
		if c.kind != nodeElem {
			continue
		}
		switch c.name.Local {
		case "datasources":
			datasources = c
		case "worksheets":
			wb.hasSheets = true
			for _, w := range c.children {
				if w.kind == nodeElem && w.name.Local == "worksheet" {
					wb.worksheets++
				}
			}
		}
	}
	if datasources == nil {
		return fmt.Errorf("%w: missing <datasources> section", ErrUnsupportedWorkbook)
	}

	for _, ds := range datasources.children {
		if ds.kind != nodeElem || ds.name.Local != "datasource" {
			continue
		}
		wb.datasources++
		if name := attrValue(ds, "name"); name != "" {
			wb.dsNames[name] = true
		}
		walkElems(ds, func(n *xmlNode) {
			if n.name.Local != "column" {
				return
			}
			if c := attrValue(n, "caption"); c != "" {
				wb.captions[c] = true
			}
			raw := attrValue(n, "name")
			if raw == "" {
				return
			}
			name := unbracketName(raw)
			if _, seen := wb.byName[name]; seen {
				wb.dupes = append(wb.dupes, name)
				return
			}

			fd := FieldDescriptor{
				Name:    name,
				Caption: attrValue(n, "caption"),
				Kind:    FieldUnknown,
				Role:    RoleUnknown,
			}
			switch attrValue(n, "role") {
			case "dimension":
				fd.Kind = FieldDimension
			case "measure":
				fd.Kind = FieldMeasure
			}
			switch attrValue(n, "type") {
			case "nominal", "ordinal":
				fd.Role = RoleDiscrete
			case "quantitative":
				fd.Role = RoleContinuous
			}
			for _, c := range n.children {
				if c.kind == nodeElem && c.name.Local == "calculation" {
					fd.Kind = FieldCalculated
					fd.Formula = attrValue(c, "formula")
					break
				}
			}

			wb.byName[fd.Name] = len(wb.fields)
			wb.fields = append(wb.fields, fd)
		})
	}
	return nil
}

// Catalog returns the field descriptors in document declaration order.
func (wb *Workbook) Catalog() []FieldDescriptor {
	out := make([]FieldDescriptor, len(wb.fields))
	copy(out, wb.fields)
	return out
}

// Field returns the descriptor for an internal field name.
func (wb *Workbook) Field(name string) (FieldDescriptor, bool) {
	i, ok := wb.byName[name]
	if !ok {
		return FieldDescriptor{}, false
	}
	return wb.fields[i], true
}

// Version returns the workbook's declared version attribute.
func (wb *Workbook) Version() string { return wb.version }

// Datasources returns the number of datasource declarations.
func (wb *Workbook) Datasources() int { return wb.datasources }

// Worksheets returns the number of worksheet declarations.
func (wb *Workbook) Worksheets() int { return wb.worksheets }

// FindReferences scans the whole tree for occurrences of a field name:
// catalog declarations (name/caption attributes), bracketed tokens in any
// attribute value (formulas, filters, sorts), and bracketed tokens in text
// content (shelf expressions). Document order.
func (wb *Workbook) FindReferences(name string) []LocationRef {
	var refs []LocationRef
	wb.walkRefs(func(ref LocationRef, refName string) {
		if refName == name {
			refs = append(refs, ref)
		}
	})
	return refs
}

// ReferencedNames returns every field name the tree references via bracketed
// tokens, with their locations. Used by validation to spot references to
// fields absent from the catalog.
func (wb *Workbook) ReferencedNames() map[string][]LocationRef {
	out := make(map[string][]LocationRef)
	wb.walkRefs(func(ref LocationRef, refName string) {
		out[refName] = append(out[refName], ref)
	})
	return out
}

func (wb *Workbook) walkRefs(visit func(LocationRef, string)) {
	var walk func(n *xmlNode, path string)
	walk = func(n *xmlNode, path string) {
		for _, a := range n.attrs {
			if n.name.Local == "column" && a.Name.Local == "name" {
				visit(LocationRef{Path: path, Attr: "name"}, unbracketName(a.Value))
				continue
			}
			if n.name.Local == "column" && a.Name.Local == "caption" {
				visit(LocationRef{Path: path, Attr: "caption"}, a.Value)
				continue
			}
			for _, ref := range scanFieldRefs(a.Value) {
				visit(LocationRef{Path: path, Attr: a.Name.Local}, ref.Name)
			}
		}
		counts := make(map[string]int)
		for _, c := range n.children {
			switch c.kind {
			case nodeElem:
				idx := counts[c.name.Local]
				counts[c.name.Local]++
				walk(c, fmt.Sprintf("%s/%s[%d]", path, c.name.Local, idx))
			case nodeText:
				for _, ref := range scanFieldRefs(c.text) {
					visit(LocationRef{Path: path}, ref.Name)
				}
			}
		}
	}
	walk(wb.root, "/"+wb.root.name.Local)
}

// Validate cross-checks the catalog against the reference scan. It reports
// findings only; a workbook that parsed never fails validation.
func (wb *Workbook) Validate() *ValidationReport {
	report := &ValidationReport{}

	if !wb.hasSheets {
		report.addWarning("workbook has no <worksheets> section")
	}
	for _, d := range wb.dupes {
		report.addError(fmt.Sprintf("field %q declared more than once in the catalog", d))
	}

	for name, refs := range wb.ReferencedNames() {
		if _, ok := wb.byName[name]; ok {
			continue
		}
		// Captions and datasource qualifiers occur in reference position but
		// are not field names; only genuinely unknown names get flagged.
		if wb.captions[name] || wb.dsNames[name] || isParameterizedRef(name) {
			continue
		}
		report.addLocWarning(refs[0].Path, fmt.Sprintf("reference to %q, which is not declared in the catalog (%d occurrence(s))", name, len(refs)))
	}
	return report
}

// isParameterizedRef reports whether a bracketed token is a derived instance
// reference like [none:Region:nk] rather than a plain field name. Those are
// qualified forms Tableau generates; they are not catalog entries.
func isParameterizedRef(name string) bool {
	return strings.Count(name, ":") >= 2
}

// applyRenames rewrites every structural location in a single pass from the
// snapshot lookup. Returns per-original replacement counts. The catalog is
// re-derived afterwards so the model stays consistent with the tree.
func (wb *Workbook) applyRenames(lookup map[string]string) (map[string]int, error) {
	counts := make(map[string]int)

	var walk func(n *xmlNode)
	walk = func(n *xmlNode) {
		for i := range n.attrs {
			a := &n.attrs[i]
			if n.name.Local == "column" && (a.Name.Local == "name" || a.Name.Local == "caption") {
				plain := unbracketName(a.Value)
				if repl, ok := lookup[plain]; ok {
					if a.Value == plain {
						a.Value = repl
					} else {
						a.Value = bracketName(repl)
					}
					counts[plain]++
				}
				continue
			}
			if nv, changed := rewriteFieldRefs(a.Value, lookup, counts); changed {
				a.Value = nv
			}
		}
		for _, c := range n.children {
			switch c.kind {
			case nodeElem:
				walk(c)
			case nodeText:
				if nv, changed := rewriteFieldRefs(c.text, lookup, counts); changed {
					c.text = nv
				}
			}
		}
	}
	walk(wb.root)

	if err := wb.deriveCatalog(); err != nil {
		return nil, err
	}
	return counts, nil
}

// Serialize writes the tree back to bytes. Round-trip guarantee: parsing the
// output yields an equivalent catalog and reference set (structural
// equivalence; whitespace between elements is preserved as parsed).
func (wb *Workbook) Serialize() ([]byte, error) {
	var b strings.Builder

	wroteDecl := false
	for _, n := range wb.prolog {
		wb.writeNode(&b, n)
		if n.kind == nodeProcInst && n.name.Local == "xml" {
			wroteDecl = true
		}
		b.WriteByte('\n')
	}
	if !wroteDecl {
		// Tableau emits single-quoted declarations.
		out := "<?xml version='1.0' encoding='utf-8'?>\n" + b.String()
		b.Reset()
		b.WriteString(out)
	}

	wb.writeNode(&b, wb.root)
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func (wb *Workbook) writeNode(b *strings.Builder, n *xmlNode) {
	switch n.kind {
	case nodeText:
		b.WriteString(escapeText(n.text))
	case nodeComment:
		b.WriteString("<!--")
		b.WriteString(n.text)
		b.WriteString("-->")
	case nodeProcInst:
		b.WriteString("<?")
		b.WriteString(n.name.Local)
		if n.text != "" {
			b.WriteByte(' ')
			b.WriteString(n.text)
		}
		b.WriteString("?>")
	case nodeDirective:
		b.WriteString("<!")
		b.WriteString(n.text)
		b.WriteByte('>')
	case nodeElem:
		name := wb.qualify(n.name)
		b.WriteByte('<')
		b.WriteString(name)
		for _, a := range n.attrs {
			b.WriteByte(' ')
			b.WriteString(wb.qualifyAttr(a.Name))
			b.WriteString("='")
			b.WriteString(escapeAttr(a.Value))
			b.WriteByte('\'')
		}
		if len(n.children) == 0 {
			b.WriteString(" />")
			return
		}
		b.WriteByte('>')
		for _, c := range n.children {
			wb.writeNode(b, c)
		}
		b.WriteString("</")
		b.WriteString(name)
		b.WriteByte('>')
	}
}

// qualify maps a decoded element name (namespace URL resolved) back to its
// prefixed form using the declarations collected at parse time.
func (wb *Workbook) qualify(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	if p, ok := wb.nsPrefix[name.Space]; ok && p != "" {
		return p + ":" + name.Local
	}
	return name.Local
}

func (wb *Workbook) qualifyAttr(name xml.Name) string {
	if name.Space == "xmlns" {
		return "xmlns:" + name.Local
	}
	return wb.qualify(name)
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	"\n", "&#10;",
	"\r", "&#13;",
	"\t", "&#9;",
)

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

func escapeAttr(s string) string { return attrEscaper.Replace(s) }
func escapeText(s string) string { return textEscaper.Replace(s) }

// attrValue returns the value of an unqualified attribute, or "".
func attrValue(n *xmlNode, local string) string {
	for _, a := range n.attrs {
		if a.Name.Local == local && a.Name.Space != "xmlns" {
			return a.Value
		}
	}
	return ""
}

// walkElems visits n and every descendant element in document order.
func walkElems(n *xmlNode, visit func(*xmlNode)) {
	if n.kind != nodeElem {
		return
	}
	visit(n)
	for _, c := range n.children {
		walkElems(c, visit)
	}
}
