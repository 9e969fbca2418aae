package lin

// Framing selects how breaks appear in the received byte stream.
type Framing uint8

const (
	// FramingSync is a plain UART: the break arrives as 0x00 and is followed
	// by the 0x55 sync byte.
	FramingSync Framing = iota
	// FramingMarked is a tty with PARMRK set: a break arrives as FF 00 00,
	// a byte X with a framing error as FF 00 X and a literal FF as FF FF.
	FramingMarked
)

func (f Framing) String() string {
	if f == FramingMarked {
		return "marked"
	}
	return "sync"
}

type decState uint8

const (
	stWaitBreak decState = iota
	stWaitSync
	stFrame
)

// Decoder turns a received byte stream into frames. A frame runs from the
// byte after the sync field up to the next break or the next Idle call.
// It is not safe for concurrent use; one receive goroutine owns it.
type Decoder struct {
	framing Framing
	onFrame func(Frame)
	onError func(ErrorFlags)

	state    decState
	cur      Frame
	overflow bool
	corrupt  ErrorFlags
	zeros    int   // FramingSync: 0x00 bytes held back as a possible break
	esc      uint8 // FramingMarked: progress through an FF 00 xx marker
}

// NewDecoder returns a decoder delivering complete frames to onFrame and
// error flags to onError.
func NewDecoder(framing Framing, onFrame func(Frame), onError func(ErrorFlags)) *Decoder {
	if onFrame == nil {
		onFrame = func(Frame) {}
	}
	if onError == nil {
		onError = func(ErrorFlags) {}
	}
	return &Decoder{framing: framing, onFrame: onFrame, onError: onError}
}

// Feed consumes received bytes.
func (d *Decoder) Feed(p []byte) {
	for _, b := range p {
		if d.framing == FramingMarked {
			d.feedMarked(b)
		} else {
			d.feedSync(b)
		}
	}
}

// Idle ends the frame in progress. Call it when a read times out with no
// data: the gap after a response is the only end marker LIN provides.
func (d *Decoder) Idle() {
	d.flushZeros()
	d.esc = 0
	d.finish()
	d.state = stWaitBreak
}

func (d *Decoder) feedSync(b byte) {
	switch d.state {
	case stWaitBreak:
		if b == 0x00 {
			d.state = stWaitSync
		}
	case stWaitSync:
		switch b {
		case Sync:
			d.start()
		case 0x00: // a long break can read as several zero bytes
		default:
			d.onError(FlagSync)
			d.state = stWaitBreak
		}
	case stFrame:
		// Zeros after the identifier are held back until the next byte shows
		// whether they were data or a break. A run ending in 55 is the next
		// header. Data that happens to end in 00 followed by 55 is split in
		// the wrong place; use the tty backend when that matters.
		if b == 0x00 && d.cur.Len >= 1 {
			d.zeros++
			return
		}
		if d.zeros > 0 && b == Sync {
			// A break may read as several zero bytes; the whole run is dropped.
			d.zeros = 0
			d.finish()
			d.start()
			return
		}
		d.flushZeros()
		d.data(b)
	}
}

func (d *Decoder) flushZeros() {
	n := d.zeros
	d.zeros = 0
	for i := 0; i < n && !d.overflow; i++ {
		d.data(0x00)
	}
}

func (d *Decoder) feedMarked(b byte) {
	switch d.esc {
	case 0:
		if b == 0xFF {
			d.esc = 1
			return
		}
		d.marked(b)
	case 1:
		d.esc = 0
		switch b {
		case 0xFF:
			d.marked(0xFF)
		case 0x00:
			d.esc = 2
		default: // not a marker; pass both bytes through
			d.marked(0xFF)
			d.marked(b)
		}
	case 2:
		d.esc = 0
		if b == 0x00 {
			d.finish()
			d.state = stWaitSync
			return
		}
		if d.state == stFrame {
			d.corrupt |= FlagFraming
			d.data(b)
			return
		}
		d.onError(FlagFraming)
	}
}

func (d *Decoder) marked(b byte) {
	switch d.state {
	case stWaitSync:
		if b == Sync {
			d.start()
			return
		}
		d.onError(FlagSync)
		d.state = stWaitBreak
	case stFrame:
		d.data(b)
	}
}

func (d *Decoder) start() {
	d.cur = Frame{}
	d.overflow = false
	d.corrupt = 0
	d.zeros = 0
	d.state = stFrame
}

func (d *Decoder) data(b byte) {
	if int(d.cur.Len) >= MaxFrameLen {
		d.overflow = true
		return
	}
	d.cur.Data[d.cur.Len] = b
	d.cur.Len++
}

func (d *Decoder) finish() {
	if d.state != stFrame {
		return
	}
	d.state = stWaitBreak
	switch {
	case d.overflow:
		d.onError(FlagOverflow)
		return
	case d.cur.Len < 2:
		d.onError(FlagShort)
		return
	}
	flags := d.corrupt
	if !ParityOK(d.cur.Data[0]) {
		flags |= FlagParity
	}
	if flags != 0 {
		d.onError(flags)
	}
	d.onFrame(d.cur)
}
