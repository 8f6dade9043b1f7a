// Package tsdoc provides an in-memory model of Qt Linguist TS documents:
// an ordered tree of translation contexts and units loaded from XML,
// mutated only through translation slots, and serialized back with all
// untouched structure preserved.
package tsdoc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/beevik/etree"
)

// Sentinel errors for document loading.
var (
	ErrMalformedDocument = errors.New("malformed ts document")
	ErrMissingRoot       = errors.New("missing TS root element")
)

// Indentation applied on serialization, matching Qt Linguist output.
const indentSpaces = 2

// State describes the translation progress of a single unit.
type State int

// Translation states, derived from the unit's translation element.
const (
	// StateMissing means the unit has no translation element or only
	// blank translation text.
	StateMissing State = iota

	// StateDraft means the translation element carries the unfinished
	// marker attribute.
	StateDraft

	// StateFinal means the translation has non-blank text and no
	// unfinished marker.
	StateFinal
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateDraft:
		return "draft"
	case StateFinal:
		return "final"
	default:
		return "missing"
	}
}

// Qt Linguist flags translations that still need review with the
// unfinished type attribute.
const (
	translationTag   = "translation"
	typeAttr         = "type"
	unfinishedMarker = "unfinished"
)

// Location is one provenance reference of a unit, informational only.
type Location struct {
	Filename string
	Line     string
}

// String renders the location the way prompts and reports display it:
// "filename:line", bare filename, or "line <n>".
func (l Location) String() string {
	switch {
	case l.Filename != "" && l.Line != "":
		return l.Filename + ":" + l.Line
	case l.Filename != "":
		return l.Filename
	case l.Line != "":
		return "line " + l.Line
	default:
		return ""
	}
}

// Unit is one translatable entry. Source text, locations and comments are
// immutable once loaded; translation state is read live from the underlying
// element so that writes through the slot are immediately visible.
type Unit struct {
	elem *etree.Element

	// ContextName is the trimmed name of the enclosing context.
	ContextName string

	// Source is the raw source text, untrimmed. It is the identity used
	// for deduplication and checkpoint keys.
	Source string

	// Locations holds the ordered provenance references.
	Locations []Location

	// Comment, ExtraComment and TranslatorComment are the optional
	// annotations, trimmed, empty when absent.
	Comment           string
	ExtraComment      string
	TranslatorComment string
}

// TranslationText returns the current translation text, empty when no
// translation element exists.
func (u *Unit) TranslationText() string {
	elem := u.elem.SelectElement(translationTag)
	if elem == nil {
		return ""
	}

	return elem.Text()
}

// State derives the unit's translation state from the live element.
func (u *Unit) State() State {
	elem := u.elem.SelectElement(translationTag)
	if elem == nil {
		return StateMissing
	}

	if elem.SelectAttrValue(typeAttr, "") == unfinishedMarker {
		return StateDraft
	}

	if strings.TrimSpace(elem.Text()) == "" {
		return StateMissing
	}

	return StateFinal
}

// Slot is the mutable translation holder of a unit.
type Slot struct {
	elem *etree.Element
}

// TranslationSlot returns the unit's translation holder, creating one in
// the draft (unfinished) state when absent. Calling it repeatedly returns
// a slot over the same underlying element.
func (u *Unit) TranslationSlot() *Slot {
	elem := u.elem.SelectElement(translationTag)
	if elem == nil {
		elem = u.elem.CreateElement(translationTag)
		elem.CreateAttr(typeAttr, unfinishedMarker)
	}

	return &Slot{elem: elem}
}

// Text returns the slot's current translation text.
func (s *Slot) Text() string {
	return s.elem.Text()
}

// Unfinished reports whether the slot still carries the draft marker.
func (s *Slot) Unfinished() bool {
	return s.elem.SelectAttrValue(typeAttr, "") == unfinishedMarker
}

// SetText writes the translated text and clears the draft marker.
func (s *Slot) SetText(text string) {
	s.elem.SetText(text)
	s.elem.RemoveAttr(typeAttr)
}

// SetTranslation writes text into the unit's translation slot, creating
// the slot when absent and clearing any draft marker. Idempotent.
func (u *Unit) SetTranslation(text string) {
	u.TranslationSlot().SetText(text)
}

// Context is one named grouping of units.
type Context struct {
	elem *etree.Element

	// Name is the trimmed context name, possibly empty.
	Name string

	units []*Unit
}

// Units returns the context's units in document order.
func (c *Context) Units() []*Unit {
	return c.units
}

// Document is an ordered sequence of contexts backed by the parsed XML
// tree. All structure not touched through translation slots round-trips
// unchanged.
type Document struct {
	tree     *etree.Document
	contexts []*Context
}

// Load reads and parses a TS document from path.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ts document: %w", err)
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return doc, nil
}

// Parse parses a TS document from r.
func Parse(r io.Reader) (*Document, error) {
	tree := etree.NewDocument()

	_, err := tree.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}

	root := tree.SelectElement("TS")
	if root == nil {
		return nil, ErrMissingRoot
	}

	doc := &Document{tree: tree}

	for _, ctxElem := range root.SelectElements("context") {
		ctx := &Context{
			elem: ctxElem,
			Name: strings.TrimSpace(elementText(ctxElem, "name")),
		}

		for _, msgElem := range ctxElem.SelectElements("message") {
			unit := newUnit(msgElem, ctx.Name)
			if unit == nil {
				continue
			}

			ctx.units = append(ctx.units, unit)
		}

		doc.contexts = append(doc.contexts, ctx)
	}

	return doc, nil
}

// newUnit builds a Unit from a message element. Messages without a source
// element are not modeled; they stay in the tree untouched.
func newUnit(msgElem *etree.Element, contextName string) *Unit {
	sourceElem := msgElem.SelectElement("source")
	if sourceElem == nil {
		return nil
	}

	unit := &Unit{
		elem:              msgElem,
		ContextName:       contextName,
		Source:            sourceElem.Text(),
		Comment:           strings.TrimSpace(elementText(msgElem, "comment")),
		ExtraComment:      strings.TrimSpace(elementText(msgElem, "extracomment")),
		TranslatorComment: strings.TrimSpace(elementText(msgElem, "translatorcomment")),
	}

	for _, locElem := range msgElem.SelectElements("location") {
		loc := Location{
			Filename: locElem.SelectAttrValue("filename", ""),
			Line:     locElem.SelectAttrValue("line", ""),
		}

		if loc.Filename == "" && loc.Line == "" {
			continue
		}

		unit.Locations = append(unit.Locations, loc)
	}

	return unit
}

// elementText returns the text of the named child element, empty when the
// child is absent.
func elementText(parent *etree.Element, tag string) string {
	child := parent.SelectElement(tag)
	if child == nil {
		return ""
	}

	return child.Text()
}

// Contexts returns the document's contexts in document order.
func (d *Document) Contexts() []*Context {
	return d.contexts
}

// UnitCount returns the number of modeled units across all contexts.
func (d *Document) UnitCount() int {
	n := 0
	for _, ctx := range d.contexts {
		n += len(ctx.units)
	}

	return n
}

// WriteTo serializes the document to w with two-space indentation and an
// XML declaration, preserving untouched elements, attributes and order.
func (d *Document) WriteTo(w io.Writer) error {
	d.ensureDeclaration()
	d.tree.Indent(indentSpaces)

	_, err := d.tree.WriteTo(w)
	if err != nil {
		return fmt.Errorf("serialize ts document: %w", err)
	}

	return nil
}

// WriteFile serializes the document to path.
func (d *Document) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create ts document: %w", err)
	}

	writeErr := d.WriteTo(f)

	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}

	if closeErr != nil {
		return fmt.Errorf("close ts document: %w", closeErr)
	}

	return nil
}

// ensureDeclaration prepends an XML declaration when the parsed input
// carried none. CreateProcInst appends, so the token is moved to the front.
func (d *Document) ensureDeclaration() {
	for _, child := range d.tree.Child {
		if _, ok := child.(*etree.ProcInst); ok {
			return
		}
	}

	decl := d.tree.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	d.tree.RemoveChild(decl)
	d.tree.InsertChildAt(0, decl)
}
