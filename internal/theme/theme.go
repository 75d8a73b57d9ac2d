// Package theme provides the default color palette for boards, columns, and
// labels. Colors live on the records as plain hex strings, so whatever
// renders a board needs no palette of its own; this package only picks the
// defaults at creation time.
package theme

import "github.com/nhle/taskboard/internal/model"

// Palette hex values.
const (
	ColorBlue    = "#5B9BD5"
	ColorGreen   = "#6BCB77"
	ColorYellow  = "#FFD93D"
	ColorRed     = "#FF6B6B"
	ColorOrange  = "#FFA94D"
	ColorMagenta = "#CC5DE8"
	ColorGray    = "#868E96"
	ColorWhite   = "#F8F9FA"
	ColorSubtle  = "#495057"
)

// DefaultBoardBackground is the background a new board starts with.
const DefaultBoardBackground = ColorWhite

// columnPalette is cycled by creation order, so adjacent columns come out
// visually distinct without anyone choosing.
var columnPalette = []string{
	ColorBlue,
	ColorGreen,
	ColorYellow,
	ColorOrange,
	ColorMagenta,
}

// labelPalette is offset from the column palette so a board's first label
// does not match its first column.
var labelPalette = []string{
	ColorMagenta,
	ColorRed,
	ColorGreen,
	ColorBlue,
	ColorOrange,
	ColorYellow,
}

// ColumnColor returns the default color for the n-th column of a board.
func ColumnColor(n int) string {
	if n < 0 {
		n = 0
	}
	return columnPalette[n%len(columnPalette)]
}

// LabelColor returns the default color for the n-th label of a board.
func LabelColor(n int) string {
	if n < 0 {
		n = 0
	}
	return labelPalette[n%len(labelPalette)]
}

// PriorityColor returns the color code for a card priority.
func PriorityColor(p model.Priority) string {
	switch p {
	case model.PriorityCritical:
		return ColorRed
	case model.PriorityHigh:
		return ColorOrange
	case model.PriorityMedium:
		return ColorYellow
	case model.PriorityLow:
		return ColorBlue
	default:
		return ColorGray
	}
}
