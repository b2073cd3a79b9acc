// Package postback turns the inline scripts the portal attaches to links and
// buttons into plain form submissions, without evaluating any script.
//
// The scripts look like this:
//
//	if(typeof jsfcljs == 'function'){jsfcljs(document.getElementById('formId'),{'key':'value'},'');}return false
//
// The element lookup names the hidden form to submit, the optional object
// literal contains the fields the script would have injected into it.
package postback

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var ErrFormNotFound = errors.New("postback form not found")

// Form is a resolved postback, it is never mutated after extraction.
type Form struct {
	Action *url.URL
	Fields *Fields
}

// Id returns the "id" field of the form which most listings use to identify
// the resource the form refers to.
func (f Form) Id() string {
	if f.Fields == nil {
		return ""
	}
	return f.Fields.Get("id")
}

// ViewState returns the view state the form was rendered with.
func (f Form) ViewState() string {
	if f.Fields == nil {
		return ""
	}
	return f.Fields.Get(ViewStateField)
}

const ViewStateField = "javax.faces.ViewState"

// Extract resolves the form referenced by script inside doc. The default
// fields are every named non-submit input inside the form, the literal
// overrides in the script replace them on collision. The action is resolved
// against base.
func Extract(script string, doc *goquery.Document, base *url.URL) (Form, error) {
	call, err := parseScript(script)
	if err != nil {
		return Form{}, err
	}

	el := findById(doc, call.elementId)
	if el.Length() == 0 {
		return Form{}, fmt.Errorf("%w: no element with id '%s'", ErrFormNotFound, call.elementId)
	}
	form := el
	if goquery.NodeName(el) != "form" {
		form = el.Closest("form")
		if form.Length() == 0 {
			return Form{}, fmt.Errorf("%w: element '%s' is not inside a form", ErrFormNotFound, call.elementId)
		}
	}

	out, err := FromForm(form, base)
	if err != nil {
		return Form{}, fmt.Errorf("form '%s': %w", call.elementId, err)
	}
	for _, override := range call.overrides {
		out.Fields.Set(override.key, override.value)
	}
	return out, nil
}

// FromForm builds the submission of a form element as is: every named
// non-submit input inside it, posted to its action resolved against base.
func FromForm(form *goquery.Selection, base *url.URL) (Form, error) {
	action, err := base.Parse(form.AttrOr("action", ""))
	if err != nil {
		return Form{}, fmt.Errorf("resolve action: %w", err)
	}

	fields := NewFields()
	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		if strings.EqualFold(input.AttrOr("type", ""), "submit") {
			return
		}
		name := input.AttrOr("name", "")
		if name == "" {
			return
		}
		fields.Set(name, input.AttrOr("value", ""))
	})

	return Form{
		Action: action,
		Fields: fields,
	}, nil
}

// ExtractFromSelection extracts the form of the onclick attribute of sel.
func ExtractFromSelection(sel *goquery.Selection, doc *goquery.Document, base *url.URL) (Form, error) {
	onclick, ok := sel.Attr("onclick")
	if !ok {
		return Form{}, fmt.Errorf("%w: element has no onclick", ErrFormNotFound)
	}
	return Extract(onclick, doc, base)
}

// findById matches ids exactly, the ids the portal generates contain colons
// which would otherwise need escaping in a selector.
func findById(doc *goquery.Document, id string) *goquery.Selection {
	return doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.AttrOr("id", "") == id
	}).First()
}
