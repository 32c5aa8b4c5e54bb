package form

import (
	"fmt"
	"gamesync-backend/internal/session"
	"gamesync-backend/lib/htmlutil"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// ErrFormParsing means the page no longer has the structure the scraper relies on.
var ErrFormParsing = fmt.Errorf("form parsing failed")

// RemoteValidationError is the portal's own rejection message for a submission.
type RemoteValidationError struct {
	Message string
}

func (e *RemoteValidationError) Error() string {
	return fmt.Sprintf("portal rejected submission: %s", e.Message)
}

type Option struct {
	Value    string
	Text     string
	Selected bool
}

type Select struct {
	Id      string
	Name    string
	Options []Option
}

// Selected returns the option marked as selected, a browser falls back to the
// first option when none is.
func (s Select) Selected() (Option, bool) {
	for _, o := range s.Options {
		if o.Selected {
			return o, true
		}
	}
	if len(s.Options) > 0 {
		return s.Options[0], false
	}
	return Option{}, false
}

// Context is a parsed form page. Every map is keyed by element id, falling back
// to the element name for elements without one.
type Context struct {
	URL        *url.URL
	Tokens     session.Tokens
	Selects    map[string]Select
	Inputs     map[string]string
	Checkboxes map[string]bool
	TextAreas  map[string]string
	Labels     map[string]string
	// Names maps element ids to the field names they post under.
	Names map[string]string
}

// Select returns the select with the given id, or ErrFormParsing when the page
// does not have it.
func (c Context) Select(id string) (Select, error) {
	sel, ok := c.Selects[id]
	if !ok {
		return Select{}, fmt.Errorf("%w: missing select %s", ErrFormParsing, id)
	}
	return sel, nil
}

func elementKey(s *goquery.Selection) string {
	id, _ := s.Attr("id")
	if id != "" {
		return id
	}
	name, _ := s.Attr("name")
	return name
}

func hiddenValue(doc *goquery.Document, name string) (string, bool) {
	sel := doc.Find(fmt.Sprintf(`input[name="%s"]`, name)).First()
	if sel.Length() == 0 {
		return "", false
	}
	return sel.AttrOr("value", ""), true
}

func parseTokens(doc *goquery.Document) session.Tokens {
	viewstate, _ := hiddenValue(doc, FIELD_VIEWSTATE)
	generator, _ := hiddenValue(doc, FIELD_VIEWSTATEGENERATOR)
	validation, _ := hiddenValue(doc, FIELD_EVENTVALIDATION)
	return session.Tokens{
		ViewState:          viewstate,
		ViewStateGenerator: generator,
		EventValidation:    validation,
	}
}

func parseContext(doc *goquery.Document) (Context, error) {
	for _, name := range []string{FIELD_VIEWSTATE, FIELD_VIEWSTATEGENERATOR, FIELD_EVENTVALIDATION} {
		_, ok := hiddenValue(doc, name)
		if !ok {
			return Context{}, fmt.Errorf("%w: missing hidden field %s", ErrFormParsing, name)
		}
	}

	form := Context{
		Tokens:     parseTokens(doc),
		Selects:    make(map[string]Select),
		Inputs:     make(map[string]string),
		Checkboxes: make(map[string]bool),
		TextAreas:  make(map[string]string),
		Labels:     make(map[string]string),
		Names:      make(map[string]string),
	}

	remember := func(s *goquery.Selection) string {
		key := elementKey(s)
		if name, ok := s.Attr("name"); ok && key != "" {
			form.Names[key] = name
		}
		return key
	}

	doc.Find("select").Each(func(_ int, s *goquery.Selection) {
		key := remember(s)
		if key == "" {
			return
		}
		sel := Select{Id: s.AttrOr("id", ""), Name: s.AttrOr("name", "")}
		s.Find("option").Each(func(_ int, o *goquery.Selection) {
			text := htmlutil.CleanText(o.Text())
			_, selected := o.Attr("selected")
			sel.Options = append(sel.Options, Option{
				Value:    o.AttrOr("value", text),
				Text:     text,
				Selected: selected,
			})
		})
		form.Selects[key] = sel
	})

	doc.Find("input").Each(func(_ int, s *goquery.Selection) {
		key := remember(s)
		if key == "" {
			return
		}
		switch s.AttrOr("type", "text") {
		case "checkbox", "radio":
			_, checked := s.Attr("checked")
			form.Checkboxes[key] = checked
		case "submit", "button", "image":
		default:
			form.Inputs[key] = s.AttrOr("value", "")
		}
	})

	doc.Find("textarea").Each(func(_ int, s *goquery.Selection) {
		key := remember(s)
		if key == "" {
			return
		}
		form.TextAreas[key] = htmlutil.CleanText(s.Text())
	})

	doc.Find("span[id]").Each(func(_ int, s *goquery.Selection) {
		form.Labels[s.AttrOr("id", "")] = htmlutil.CleanText(s.Text())
	})

	return form, nil
}

// Result is the page the portal answered an accepted submission with.
type Result struct {
	URL  *url.URL
	Body []byte
}
