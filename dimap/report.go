package dimap

// Severity classifies a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one issue discovered during parsing or validation.
type Finding struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Row      int      `json:"row,omitempty"`      // 1-based CSV row, 0 when not applicable
	Location string   `json:"location,omitempty"` // document path, empty when not applicable
}

// ValidationReport collects findings. Parsing and validation never stop at
// the first problem; callers see the full set of fixes needed in one pass.
type ValidationReport struct {
	Findings []Finding `json:"findings"`
}

// OK reports whether the report contains no error-severity findings.
func (r *ValidationReport) OK() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Errors returns the number of error-severity findings.
func (r *ValidationReport) Errors() int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Warnings returns the number of warning-severity findings.
func (r *ValidationReport) Warnings() int {
	return len(r.Findings) - r.Errors()
}

func (r *ValidationReport) addError(msg string) {
	r.Findings = append(r.Findings, Finding{Severity: SeverityError, Message: msg})
}

func (r *ValidationReport) addWarning(msg string) {
	r.Findings = append(r.Findings, Finding{Severity: SeverityWarning, Message: msg})
}

func (r *ValidationReport) addRowError(row int, msg string) {
	r.Findings = append(r.Findings, Finding{Severity: SeverityError, Message: msg, Row: row})
}

func (r *ValidationReport) addRowWarning(row int, msg string) {
	r.Findings = append(r.Findings, Finding{Severity: SeverityWarning, Message: msg, Row: row})
}

func (r *ValidationReport) addLocError(loc, msg string) {
	r.Findings = append(r.Findings, Finding{Severity: SeverityError, Message: msg, Location: loc})
}

func (r *ValidationReport) addLocWarning(loc, msg string) {
	r.Findings = append(r.Findings, Finding{Severity: SeverityWarning, Message: msg, Location: loc})
}
