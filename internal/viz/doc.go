// Package viz is the terminal browser for stored runs.
//
// The browser lists runs newest first; enter opens a run with its summary
// and a chart of one series.
//
// # Key Bindings
//
//	j/k, ↑/↓ - Move through runs
//	Enter    - Open the selected run
//	Tab      - Next series
//	Esc      - Back to the list
//	q        - Quit
package viz
