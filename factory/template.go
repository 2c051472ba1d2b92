/*
Package factory converts template documents to and from planning.Template.

PURPOSE:
  Duty templates ("squelettes") are written by planners, not developers.
  The factory reads them as YAML or JSON, checks the document shape with
  struct-tag validation, then lets planning.Template.Validate check the
  semantics (clock times, shift types, RRULE syntax).

DOCUMENT SCHEMA (YAML):
  name: Semaine standard
  description: Day and night cover, Monday to Friday
  isDefault: true
  anchor: 2024-01-01          # optional Monday INTERVAL rules count from
  slots:
    - label: Jour
      days: [MO, TU, WE, TH, FR]
      start: "08:00"
      end: "20:00"
      type: regular
    - label: Renfort
      rule: FREQ=WEEKLY;INTERVAL=2;BYDAY=WE
      start: "10:00"
      end: "18:00"
      type: reinforcement

  A slot needs days or rule. An end at or before its start ends the next
  day. Days accept two-letter RRULE codes or English names ("monday",
  "mon"), case-insensitive. type defaults to regular.

USAGE:
  f := factory.NewTemplateFactory()
  tmpl, err := f.Parse(data, factory.FormatFromPath("week.yaml"))
  ...
  saved, err := svc.CreateTemplate(ctx, *tmpl)

SEE ALSO:
  - planning/template.go: expansion and application
  - cmd/planning: "template import" command
  - api: POST /templates accepts both formats
*/
package factory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/villacare/planning-engine/planning"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// TemplateDocument is the serialized form of a template.
type TemplateDocument struct {
	ID          string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string         `json:"name" yaml:"name" validate:"required"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	IsDefault   bool           `json:"isDefault,omitempty" yaml:"isDefault,omitempty"`
	Anchor      string         `json:"anchor,omitempty" yaml:"anchor,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Slots       []SlotDocument `json:"slots" yaml:"slots" validate:"required,min=1,dive"`
}

// SlotDocument is one recurring slot of a template document.
type SlotDocument struct {
	Label string   `json:"label" yaml:"label" validate:"required"`
	Days  []string `json:"days,omitempty" yaml:"days,omitempty" validate:"required_without=Rule,dive,required"`
	Rule  string   `json:"rule,omitempty" yaml:"rule,omitempty" validate:"required_without=Days"`
	Start string   `json:"start" yaml:"start" validate:"required,datetime=15:04"`
	End   string   `json:"end" yaml:"end" validate:"required,datetime=15:04"`
	Type  string   `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=regular reinforcement weekend_duty other"`
}

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension. Anything that is
// not .json is read as YAML, which also accepts JSON.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// FormatFromContentType maps an HTTP Content-Type to a format.
func FormatFromContentType(contentType string) Format {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "yaml") || strings.Contains(ct, "yml") {
		return FormatYAML
	}
	return FormatJSON
}

// =============================================================================
// TEMPLATE FACTORY
// =============================================================================

// TemplateFactory converts documents to templates. Safe for concurrent use.
type TemplateFactory struct {
	validate *validator.Validate
}

// NewTemplateFactory creates a factory.
func NewTemplateFactory() *TemplateFactory {
	return &TemplateFactory{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Parse decodes and converts a document.
func (f *TemplateFactory) Parse(data []byte, format Format) (*planning.Template, error) {
	var doc TemplateDocument
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, &planning.ValidationError{Message: fmt.Sprintf("failed to parse template JSON: %v", err)}
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, &planning.ValidationError{Message: fmt.Sprintf("failed to parse template YAML: %v", err)}
		}
	default:
		return nil, fmt.Errorf("unknown template format %q", format)
	}
	return f.FromDocument(doc)
}

// FromDocument validates a document and converts it.
func (f *TemplateFactory) FromDocument(doc TemplateDocument) (*planning.Template, error) {
	if err := f.validate.Struct(doc); err != nil {
		return nil, fieldError(err)
	}

	tmpl := &planning.Template{
		ID:          doc.ID,
		Name:        strings.TrimSpace(doc.Name),
		Description: doc.Description,
		IsDefault:   doc.IsDefault,
	}
	if doc.Anchor != "" {
		anchor, err := time.Parse(time.DateOnly, doc.Anchor)
		if err != nil {
			return nil, &planning.ValidationError{Field: "anchor", Message: err.Error()}
		}
		tmpl.Anchor = anchor
	}

	for i, sd := range doc.Slots {
		slot := planning.TemplateSlot{
			Label:     sd.Label,
			Rule:      sd.Rule,
			StartTime: sd.Start,
			EndTime:   sd.End,
			Type:      planning.ShiftType(sd.Type),
		}
		if slot.Type == "" {
			slot.Type = planning.ShiftRegular
		}
		for _, d := range sd.Days {
			wd, err := ParseWeekday(d)
			if err != nil {
				return nil, &planning.ValidationError{Field: fmt.Sprintf("slots[%d].days", i), Message: err.Error()}
			}
			slot.Weekdays = append(slot.Weekdays, wd)
		}
		tmpl.Slots = append(tmpl.Slots, slot)
	}

	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// ToDocument converts a template back to its document form.
func ToDocument(t planning.Template) TemplateDocument {
	doc := TemplateDocument{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		IsDefault:   t.IsDefault,
		Slots:       make([]SlotDocument, 0, len(t.Slots)),
	}
	if !t.Anchor.IsZero() {
		doc.Anchor = t.Anchor.Format(time.DateOnly)
	}
	for _, s := range t.Slots {
		sd := SlotDocument{
			Label: s.Label,
			Rule:  s.Rule,
			Start: s.StartTime,
			End:   s.EndTime,
			Type:  string(s.Type),
		}
		for _, wd := range s.Weekdays {
			sd.Days = append(sd.Days, weekdayCodes[wd])
		}
		doc.Slots = append(doc.Slots, sd)
	}
	return doc
}

// Encode writes a template in the given format.
func Encode(t planning.Template, format Format) ([]byte, error) {
	doc := ToDocument(t)
	if format == FormatJSON {
		return json.MarshalIndent(doc, "", "  ")
	}
	return yaml.Marshal(doc)
}

// =============================================================================
// HELPERS
// =============================================================================

var weekdayCodes = map[time.Weekday]string{
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
	time.Sunday:    "SU",
}

// ParseWeekday accepts "MO", "mon" or "monday", in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToLower(wd.String())
		if v == name || v == name[:3] || v == strings.ToLower(weekdayCodes[wd]) {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// fieldError turns the first validator failure into a planning validation
// error naming the document field.
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &planning.ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "TemplateDocument.")
	msg := fe.Tag()
	if fe.Param() != "" {
		msg += "=" + fe.Param()
	}
	return &planning.ValidationError{Field: field, Message: "failed on " + msg}
}
