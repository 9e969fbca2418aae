package indicator

import (
	"github.com/kstaniek/go-lin-monitor/internal/logging"
	"github.com/kstaniek/go-lin-monitor/internal/metrics"
)

// output tracks the last state written to a pin so that unchanged states
// are not rewritten every iteration.
type output struct {
	name      string
	pin       Pin
	on        bool
	known     bool
	errLogged bool
}

func (o *output) set(on bool) {
	if o.known && o.on == on {
		return
	}
	o.on, o.known = on, true
	metrics.SetOutput(o.name, on)
	if err := o.pin.Set(on); err != nil {
		metrics.IncError(metrics.ErrOutput)
		if !o.errLogged {
			o.errLogged = true
			logging.L().Warn("output_error", "output", o.name, "error", err)
		}
	}
}
