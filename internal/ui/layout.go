package ui

import "time"

// Card grid geometry.
const (
	// CardWidth is the outer width of one card box, borders included.
	CardWidth = 30

	// CardGap is the horizontal space between card boxes.
	CardGap = 1

	// PreviewColumnMaxWidth caps a preview column so wide tables stay readable.
	PreviewColumnMaxWidth = 28
)

// Log display limits.
const (
	// LogTailLines is the number of log lines read for the log view.
	LogTailLines = 500
)

// Timing constants.
const (
	// DefaultUIInterval is the UI refresh interval for the header and log view.
	DefaultUIInterval = time.Second

	// DefaultCardInterval is used when no card refresh interval is configured.
	DefaultCardInterval = 60 * time.Second

	// FlashDuration is how long a status message stays in the footer.
	FlashDuration = 6 * time.Second
)

// gridColumns returns how many card boxes fit side by side in width.
func gridColumns(width int) int {
	cols := (width + CardGap) / (CardWidth + CardGap)
	if cols < 1 {
		return 1
	}
	return cols
}
