package factory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villacare/planning-engine/factory"
	"github.com/villacare/planning-engine/planning"
)

const weekYAML = `
name: Semaine standard
description: Day and night cover
isDefault: true
anchor: 2024-01-01
slots:
  - label: Jour
    days: [MO, tue, Wednesday, TH, FR]
    start: "08:00"
    end: "20:00"
  - label: Renfort
    rule: FREQ=WEEKLY;INTERVAL=2;BYDAY=WE
    start: "10:00"
    end: "18:00"
    type: reinforcement
`

func TestParse_YAML(t *testing.T) {
	f := factory.NewTemplateFactory()

	tmpl, err := f.Parse([]byte(weekYAML), factory.FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "Semaine standard", tmpl.Name)
	assert.True(t, tmpl.IsDefault)
	assert.True(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Equal(tmpl.Anchor))
	require.Len(t, tmpl.Slots, 2)

	day := tmpl.Slots[0]
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, day.Weekdays)
	assert.Equal(t, planning.ShiftRegular, day.Type, "type defaults to regular")
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR", day.Recurrence())

	assert.Equal(t, planning.ShiftReinforcement, tmpl.Slots[1].Type)
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=2;BYDAY=WE", tmpl.Slots[1].Recurrence())
}

func TestParse_JSON(t *testing.T) {
	f := factory.NewTemplateFactory()
	doc := `{"name":"Nights","slots":[{"label":"Nuit","days":["SA","SU"],"start":"20:00","end":"08:00","type":"weekend_duty"}]}`

	tmpl, err := f.Parse([]byte(doc), factory.FormatJSON)
	require.NoError(t, err)
	require.Len(t, tmpl.Slots, 1)
	assert.Equal(t, planning.ShiftWeekendDuty, tmpl.Slots[0].Type)
	assert.True(t, tmpl.Anchor.IsZero())
}

func TestParse_Rejects(t *testing.T) {
	f := factory.NewTemplateFactory()

	tests := []struct {
		name   string
		doc    string
		format factory.Format
		field  string
	}{
		{"no name", `{"slots":[{"label":"a","days":["MO"],"start":"08:00","end":"09:00"}]}`, factory.FormatJSON, "Name"},
		{"no slots", `{"name":"x","slots":[]}`, factory.FormatJSON, "Slots"},
		{"no days nor rule", `{"name":"x","slots":[{"label":"a","start":"08:00","end":"09:00"}]}`, factory.FormatJSON, "Slots[0].Days"},
		{"bad clock", `{"name":"x","slots":[{"label":"a","days":["MO"],"start":"8h","end":"09:00"}]}`, factory.FormatJSON, "Slots[0].Start"},
		{"bad type", `{"name":"x","slots":[{"label":"a","days":["MO"],"start":"08:00","end":"09:00","type":"night"}]}`, factory.FormatJSON, "Slots[0].Type"},
		{"bad weekday", `{"name":"x","slots":[{"label":"a","days":["XX"],"start":"08:00","end":"09:00"}]}`, factory.FormatJSON, "slots[0].days"},
		{"bad rule", `{"name":"x","slots":[{"label":"a","rule":"FREQ=SOMETIMES","start":"08:00","end":"09:00"}]}`, factory.FormatJSON, "slots.rule"},
		{"bad anchor", "name: x\nanchor: soon\nslots:\n  - {label: a, days: [MO], start: \"08:00\", end: \"09:00\"}\n", factory.FormatYAML, "Anchor"},
		{"unknown field", "name: x\ncolour: red\nslots:\n  - {label: a, days: [MO], start: \"08:00\", end: \"09:00\"}\n", factory.FormatYAML, ""},
		{"not json", `{`, factory.FormatJSON, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Parse([]byte(tt.doc), tt.format)
			require.Error(t, err)
			assert.ErrorIs(t, err, planning.ErrInvalidInput)

			var verr *planning.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	f := factory.NewTemplateFactory()
	orig, err := f.Parse([]byte(weekYAML), factory.FormatYAML)
	require.NoError(t, err)

	for _, format := range []factory.Format{factory.FormatYAML, factory.FormatJSON} {
		data, err := factory.Encode(*orig, format)
		require.NoError(t, err)

		back, err := f.Parse(data, format)
		require.NoError(t, err, string(data))
		assert.Equal(t, orig, back)
	}
}

func TestFormatDetection(t *testing.T) {
	assert.Equal(t, factory.FormatJSON, factory.FormatFromPath("week.JSON"))
	assert.Equal(t, factory.FormatYAML, factory.FormatFromPath("week.yml"))
	assert.Equal(t, factory.FormatYAML, factory.FormatFromContentType("application/yaml; charset=utf-8"))
	assert.Equal(t, factory.FormatJSON, factory.FormatFromContentType("application/json"))
}

func TestParseWeekday(t *testing.T) {
	for _, in := range []string{"SU", "sun", "Sunday", " su "} {
		wd, err := factory.ParseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, time.Sunday, wd)
	}
	_, err := factory.ParseWeekday("funday")
	assert.Error(t, err)
}
