package schema

import (
	"fmt"
	"strings"

	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

// ValidationError is one finding of a validation.
type ValidationError struct {
	Table   string
	Column  string
	Message string
	// Breaking reports if applying the change may lose data.
	Breaking bool
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the findings of a validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// HasBreakingChanges returns true if any finding is breaking.
func (r *ValidationResult) HasBreakingChanges() bool {
	for _, e := range append(r.Errors[:len(r.Errors):len(r.Errors)], r.Warnings...) {
		if e.Breaking {
			return true
		}
	}
	return false
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	if !r.HasErrors() && !r.HasWarnings() {
		return "No issues found"
	}
	var sb strings.Builder
	write := func(title string, errs []*ValidationError) {
		if len(errs) == 0 {
			return
		}
		sb.WriteString(title + ":\n")
		for _, e := range errs {
			sb.WriteString("  - " + e.Error())
			if e.Breaking {
				sb.WriteString(" [BREAKING]")
			}
			sb.WriteString("\n")
		}
	}
	write("Errors", r.Errors)
	write("Warnings", r.Warnings)
	return sb.String()
}

func (r *ValidationResult) addError(table, column, format string, args ...any) {
	r.Errors = append(r.Errors, &ValidationError{Table: table, Column: column, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) addWarning(table, column, format string, args ...any) {
	r.Warnings = append(r.Warnings, &ValidationError{Table: table, Column: column, Message: fmt.Sprintf(format, args...)})
}

// report records a breaking change as a warning when it is allowed.
func (r *ValidationResult) report(allowed bool, e *ValidationError) {
	e.Breaking = true
	if allowed {
		r.Warnings = append(r.Warnings, e)
	} else {
		r.Errors = append(r.Errors, e)
	}
}

// ValidateOption configures ValidateDiff.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	allowDropColumn    bool
	allowDropTable     bool
	allowDropIndex     bool
	allowNullToNotNull bool
}

// AllowDropColumn reports dropped columns as warnings.
func AllowDropColumn() ValidateOption {
	return func(c *validateConfig) {
		c.allowDropColumn = true
	}
}

// AllowDropTable reports dropped tables as warnings.
func AllowDropTable() ValidateOption {
	return func(c *validateConfig) {
		c.allowDropTable = true
	}
}

// AllowDropIndex reports dropped indexes as warnings.
func AllowDropIndex() ValidateOption {
	return func(c *validateConfig) {
		c.allowDropIndex = true
	}
}

// AllowNullToNotNull reports nullable columns becoming NOT NULL as warnings.
func AllowNullToNotNull() ValidateOption {
	return func(c *validateConfig) {
		c.allowNullToNotNull = true
	}
}

// ValidateDiff compares the tables of a deployed schema with the tables
// of a registry. Changes that may lose data are errors unless allowed by
// an option; risky changes are warnings.
//
//	current, _ := schema.Tables(oldRegistry)
//	desired, _ := schema.Tables(newRegistry)
//	if res := schema.ValidateDiff(current, desired); res.HasErrors() {
//		log.Fatal(res)
//	}
func ValidateDiff(current, desired []*Table, opts ...ValidateOption) *ValidationResult {
	cfg := &validateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	result := &ValidationResult{}
	byName := make(map[string]*Table, len(desired))
	for _, t := range desired {
		byName[t.Name] = t
	}
	for _, cur := range current {
		des, ok := byName[cur.Name]
		if !ok {
			result.report(cfg.allowDropTable, &ValidationError{Table: cur.Name, Message: "table will be dropped"})
			continue
		}
		diffTable(cur, des, cfg, result)
	}
	return result
}

func diffTable(current, desired *Table, cfg *validateConfig, result *ValidationResult) {
	for _, cc := range current.Columns {
		if _, ok := desired.Column(cc.Name); !ok {
			result.report(cfg.allowDropColumn, &ValidationError{Table: current.Name, Column: cc.Name, Message: "column will be dropped"})
		}
	}
	for _, dc := range desired.Columns {
		cc, ok := current.Column(dc.Name)
		if !ok {
			if !dc.Nullable && dc.Default == nil {
				result.addWarning(current.Name, dc.Name, "new NOT NULL column without default value may fail if table has data")
			}
			continue
		}
		if !sameType(cc.Type, dc.Type) {
			result.addWarning(current.Name, dc.Name, "column type changing from %v to %v", cc.Type, dc.Type)
		}
		if cc.Nullable && !dc.Nullable {
			result.report(cfg.allowNullToNotNull, &ValidationError{
				Table:   current.Name,
				Column:  dc.Name,
				Message: "column changing from NULL to NOT NULL may fail if column has NULL values",
			})
		}
		if cc.Size > 0 && dc.Size > 0 && dc.Size < cc.Size {
			result.addWarning(current.Name, dc.Name, "column size reducing from %d to %d may truncate data", cc.Size, dc.Size)
		}
		if !cc.Unique && dc.Unique {
			result.addWarning(current.Name, dc.Name, "adding UNIQUE constraint may fail if duplicate values exist")
		}
	}
	for _, ci := range current.Indexes {
		if !hasIndex(desired, ci.Name) {
			e := &ValidationError{Table: current.Name, Message: fmt.Sprintf("index %q will be dropped", ci.Name)}
			if cfg.allowDropIndex {
				result.Warnings = append(result.Warnings, e)
			} else {
				result.Errors = append(result.Errors, e)
			}
		}
	}
}

// sameType treats an auto-increment key and the integer columns
// referencing it as the same storage type.
func sameType(a, b field.Type) bool {
	norm := func(t field.Type) field.Type {
		if t == field.TypeAutoID {
			return field.TypeInt
		}
		return t
	}
	return norm(a) == norm(b)
}

func hasIndex(t *Table, name string) bool {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return true
		}
	}
	return false
}

// ValidateTable validates a single table definition.
func ValidateTable(t *Table) *ValidationResult {
	result := &ValidationResult{}
	if len(t.PrimaryKey) == 0 {
		result.addWarning(t.Name, "", "table has no primary key")
	}
	cols := make(map[string]bool)
	for _, c := range t.Columns {
		if cols[c.Name] {
			result.addError(t.Name, c.Name, "duplicate column name")
		}
		cols[c.Name] = true
	}
	idxs := make(map[string]bool)
	for _, idx := range t.Indexes {
		if idxs[idx.Name] {
			result.addError(t.Name, "", "duplicate index name: %s", idx.Name)
		}
		idxs[idx.Name] = true
		for _, c := range idx.Columns {
			if c == nil || !cols[c.Name] {
				result.addError(t.Name, "", "index %q references a non-existent column", idx.Name)
			}
		}
	}
	for _, fk := range t.ForeignKeys {
		for i, c := range fk.Columns {
			if c == nil || !cols[c.Name] {
				result.addError(t.Name, "", "foreign key %q references a non-existent column", fk.Symbol)
				continue
			}
			if i < len(fk.RefColumns) && !sameType(c.Type, fk.RefColumns[i].Type) {
				result.addError(t.Name, c.Name, "foreign key type %v does not match %s.%s type %v",
					c.Type, fk.RefTable.Name, fk.RefColumns[i].Name, fk.RefColumns[i].Type)
			}
		}
		if len(fk.Columns) != len(fk.RefColumns) {
			result.addError(t.Name, "", "foreign key %q has %d columns but references %d", fk.Symbol, len(fk.Columns), len(fk.RefColumns))
		}
	}
	return result
}

// ValidateSchema validates all tables and the references between them.
func ValidateSchema(tables []*Table) *ValidationResult {
	result := &ValidationResult{}
	names := make(map[string]bool)
	for _, t := range tables {
		if names[t.Name] {
			result.addError(t.Name, "", "duplicate table name")
		}
		names[t.Name] = true
		tr := ValidateTable(t)
		result.Errors = append(result.Errors, tr.Errors...)
		result.Warnings = append(result.Warnings, tr.Warnings...)
	}
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			if fk.RefTable == nil || !names[fk.RefTable.Name] {
				result.addError(t.Name, "", "foreign key %q references a non-existent table", fk.Symbol)
			}
		}
	}
	return result
}
