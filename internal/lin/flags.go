package lin

import "strings"

// ErrorFlags is a bitmask of bus-level decode errors accumulated by a Source.
type ErrorFlags uint16

const (
	// FlagSync: a break was not followed by the 0x55 sync byte.
	FlagSync ErrorFlags = 1 << iota
	// FlagParity: the identifier parity bits do not match.
	FlagParity
	// FlagFraming: the UART reported a framing error inside a frame.
	FlagFraming
	// FlagShort: a header ended before identifier and checksum were received.
	FlagShort
	// FlagOverflow: more than MaxFrameLen bytes followed a header.
	FlagOverflow
	// FlagOverrun: a frame was discarded because the mailbox was full.
	FlagOverrun
	// FlagRead: the receive port returned an error.
	FlagRead
)

var flagLabels = [...]struct {
	flag  ErrorFlags
	label string
}{
	{FlagSync, "SYNC"},
	{FlagParity, "PARITY"},
	{FlagFraming, "FRAMING"},
	{FlagShort, "SHORT"},
	{FlagOverflow, "OVERFLOW"},
	{FlagOverrun, "OVERRUN"},
	{FlagRead, "READ"},
}

// ErrorReportPrefix starts every formatted error-flag line.
const ErrorReportPrefix = "LIN errors:"

// ForEach calls fn for every set flag in bit order.
func (f ErrorFlags) ForEach(fn func(flag ErrorFlags, label string)) {
	for _, fl := range flagLabels {
		if f&fl.flag != 0 {
			fn(fl.flag, fl.label)
		}
	}
}

// Labels returns the labels of the set flags in bit order.
func (f ErrorFlags) Labels() []string {
	var out []string
	f.ForEach(func(_ ErrorFlags, label string) { out = append(out, label) })
	return out
}

func (f ErrorFlags) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.Labels(), "|")
}

// TextSink is the part of the diagnostic output used for error reports.
type TextSink interface {
	Print(text string)
	Println()
}

// PrintErrorFlags writes "LIN errors: SYNC PARITY" followed by a line
// terminator. Unknown bits are ignored.
func PrintErrorFlags(w TextSink, f ErrorFlags) {
	w.Print(ErrorReportPrefix)
	f.ForEach(func(_ ErrorFlags, label string) {
		w.Print(" ")
		w.Print(label)
	})
	w.Println()
}
