// Package logtail reads the end of the metricdeck log file for the TUI log
// pane.
//
// Read extracts the last N lines with a ring buffer of size N, so memory use
// does not grow with the file. Tail parses those lines as zerolog JSON
// records into Entry values; lines that are not JSON are kept as plain
// messages.
//
//	entries, err := logtail.Tail(cfg.LogFile, 200)
//	if err != nil {
//		return err
//	}
//	for _, e := range entries {
//		fmt.Println(e.Level, e.Component, e.Message)
//	}
package logtail
