package source

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaMismatch is returned when a table lacks a required column.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Field is a canonical column name.
type Field string

const (
	FieldCountry        Field = "country"
	FieldTimeUnit       Field = "time_unit"
	FieldTime           Field = "time"
	FieldYear           Field = "year"
	FieldWeek           Field = "week"
	FieldYearWeek       Field = "year_week"
	FieldWeekEndingDate Field = "week_ending_date"
	FieldJurisdiction   Field = "jurisdiction"
	FieldDeaths         Field = "deaths"
	FieldGroup          Field = "group"
	FieldAge            Field = "age"
)

// Column declares the header names accepted for a field, in priority order.
type Column struct {
	Field    Field
	Names    []string
	Required bool
}

// Schema is the explicit header mapping of one source.
type Schema struct {
	Name    string
	Columns []Column
}

// Declared schemas, one per source. Header matching is exact after trimming
// and case folding.
var (
	HistoricalSchema = Schema{Name: "world_mortality", Columns: []Column{
		{Field: FieldCountry, Names: []string{"country_name"}, Required: true},
		{Field: FieldTimeUnit, Names: []string{"time_unit"}},
		{Field: FieldTime, Names: []string{"time"}, Required: true},
		{Field: FieldYear, Names: []string{"year"}, Required: true},
		{Field: FieldDeaths, Names: []string{"deaths"}, Required: true},
	}}

	ProvisionalSchema = Schema{Name: "cdc_provisional", Columns: []Column{
		{Field: FieldYear, Names: []string{"Year"}, Required: true},
		{Field: FieldWeek, Names: []string{"MMWR Week"}, Required: true},
		{Field: FieldWeekEndingDate, Names: []string{"Week Ending Date", "End Date"}},
		{Field: FieldJurisdiction, Names: []string{"State", "Jurisdiction"}, Required: true},
		{Field: FieldDeaths, Names: []string{"Total Deaths", "All Cause"}, Required: true},
		{Field: FieldGroup, Names: []string{"Group"}},
	}}

	ArchivedSchema = Schema{Name: "archived_nchs", Columns: []Column{
		{Field: FieldYearWeek, Names: []string{"MMWR Year/Week"}, Required: true},
		{Field: FieldAge, Names: []string{"age"}, Required: true},
		{Field: FieldJurisdiction, Names: []string{"State"}, Required: true},
		{Field: FieldDeaths, Names: []string{"All Deaths"}, Required: true},
	}}

	LocalFileSchema = Schema{Name: "local_file", Columns: []Column{
		{Field: FieldWeekEndingDate, Names: []string{"Week Ending Date", "Week Ending"}, Required: true},
		{Field: FieldJurisdiction, Names: []string{"Jurisdiction of Occurrence", "Jurisdiction", "State"}, Required: true},
		{Field: FieldDeaths, Names: []string{"All Cause", "Number of Deaths", "Deaths", "Total Deaths"}, Required: true},
	}}
)

// Schemas returns every declared schema.
func Schemas() []Schema {
	return []Schema{HistoricalSchema, ProvisionalSchema, ArchivedSchema, LocalFileSchema}
}

// ValidateSchemas checks the declared schemas for mistakes that would make
// column binding ambiguous. It is called once at startup.
func ValidateSchemas() error {
	var errs []error
	for _, s := range Schemas() {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Validate reports empty names, repeated fields and names claimed by more
// than one field.
func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema %s: no columns declared", s.Name)
	}
	fields := make(map[Field]bool)
	owner := make(map[string]Field)
	required := 0
	for _, c := range s.Columns {
		if fields[c.Field] {
			return fmt.Errorf("schema %s: field %s declared twice", s.Name, c.Field)
		}
		fields[c.Field] = true
		if len(c.Names) == 0 {
			return fmt.Errorf("schema %s: field %s has no header names", s.Name, c.Field)
		}
		for _, n := range c.Names {
			key := normalizeHeader(n)
			if key == "" {
				return fmt.Errorf("schema %s: field %s has an empty header name", s.Name, c.Field)
			}
			if prev, ok := owner[key]; ok {
				return fmt.Errorf("schema %s: header %q claimed by both %s and %s", s.Name, n, prev, c.Field)
			}
			owner[key] = c.Field
		}
		if c.Required {
			required++
		}
	}
	if required == 0 {
		return fmt.Errorf("schema %s: no required fields", s.Name)
	}
	return nil
}

// Binding maps fields to column positions of one concrete header.
type Binding struct {
	index map[Field]int
}

// Bind resolves the schema against header. Every required field must match a
// column; otherwise the error wraps ErrSchemaMismatch and names the missing
// fields.
func (s Schema) Bind(header []string) (Binding, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := positions[key]; !dup {
			positions[key] = i
		}
	}

	b := Binding{index: make(map[Field]int, len(s.Columns))}
	var missing []string
	for _, c := range s.Columns {
		found := false
		for _, n := range c.Names {
			if i, ok := positions[normalizeHeader(n)]; ok {
				b.index[c.Field] = i
				found = true
				break
			}
		}
		if !found && c.Required {
			missing = append(missing, fmt.Sprintf("%s (one of %q)", c.Field, c.Names))
		}
	}
	if len(missing) > 0 {
		return Binding{}, fmt.Errorf("%w: %s: missing %s", ErrSchemaMismatch, s.Name, strings.Join(missing, ", "))
	}
	return b, nil
}

// Has reports whether the field is present in the bound header.
func (b Binding) Has(f Field) bool {
	_, ok := b.index[f]
	return ok
}

// Value returns the trimmed cell for f, or "" when the field or cell is absent.
func (b Binding) Value(row []string, f Field) string {
	i, ok := b.index[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}
