package dimap

// ExtractOptions controls dimension extraction.
type ExtractOptions struct {
	// ExcludeCalculated drops calculated fields from the result. They are
	// rename candidates by default, but renaming one also rewrites every
	// formula that references it, so callers can opt out.
	ExcludeCalculated bool
}

// ExtractDimensions returns the workbook's rename candidates in catalog
// declaration order: discrete dimensions plus calculated fields, unless the
// latter are excluded. The workbook is not modified.
func ExtractDimensions(wb *Workbook, opts ExtractOptions) []FieldDescriptor {
	var out []FieldDescriptor
	for _, fd := range wb.Catalog() {
		switch fd.Kind {
		case FieldDimension:
			if fd.Role == RoleDiscrete {
				out = append(out, fd)
			}
		case FieldCalculated:
			if !opts.ExcludeCalculated {
				out = append(out, fd)
			}
		}
	}
	return out
}
