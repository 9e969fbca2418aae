package server

import (
	"errors"

	"github.com/kstaniek/go-lin-monitor/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrListen    = errors.New("listen")
	ErrAccept    = errors.New("accept")
	ErrHandshake = errors.New("handshake")
	ErrConnRead  = errors.New("conn_read")
	ErrConnWrite = errors.New("conn_write")
	ErrContext   = errors.New("context_cancelled")
)

var errLabels = []struct {
	err   error
	label string
}{
	{ErrConnWrite, metrics.ErrTCPWrite},
	{ErrHandshake, metrics.ErrHandshake},
	{ErrConnRead, metrics.ErrTCPRead},
	{ErrAccept, metrics.ErrTCPRead},
	{ErrListen, metrics.ErrTCPRead},
}

// errLabel maps a wrapped sentinel to its errors_total label. Anything
// unclassified is counted as a read error.
func errLabel(err error) string {
	for _, e := range errLabels {
		if errors.Is(err, e.err) {
			return e.label
		}
	}
	return metrics.ErrTCPRead
}
