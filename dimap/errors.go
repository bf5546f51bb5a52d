// CLAUDE:SUMMARY Sentinel errors for the dimap engine: mapping, workbook, remap, and IO failures.
package dimap

import "errors"

// ErrMalformedRow is returned when a mapping CSV row has fewer than two
// columns or an empty column.
var ErrMalformedRow = errors.New("dimap: malformed mapping row")

// ErrDuplicateSource is returned when the same original name appears twice
// with different replacements.
var ErrDuplicateSource = errors.New("dimap: duplicate original name")

// ErrMalformedDocument is returned when workbook bytes are not well-formed XML.
var ErrMalformedDocument = errors.New("dimap: workbook is not well-formed XML")

// ErrUnsupportedWorkbook is returned when the XML parses but the root
// structure is not a Tableau workbook.
var ErrUnsupportedWorkbook = errors.New("dimap: unexpected workbook structure")

// ErrUnknownField is returned in strict mode when a mapping original matches
// no catalog field.
var ErrUnknownField = errors.New("dimap: mapping references unknown field")

// ErrRenameCollision is returned when applying the mapping would leave two
// distinct fields with the same name.
var ErrRenameCollision = errors.New("dimap: rename collision")

// ErrIO wraps file-level failures (not found, permission denied) so the
// transport layer can distinguish them from engine errors.
var ErrIO = errors.New("dimap: io failure")
