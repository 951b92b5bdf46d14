package hotkey

import "encoding/binary"

// Linux input_event layout on 64-bit: 16 bytes timeval, type, code, value.
const inputEventSize = 24

const (
	evKey      = 1
	keyPress   = 1
	keyRelease = 0
	keyLCtrl   = 29
	keyRCtrl   = 97
	keyLShift  = 42
	keyRShift  = 54
	keySpace   = 57
)

type edge int

const (
	edgeNone edge = iota
	edgeDown
	edgeUp
)

// comboTracker follows modifier state across events from one device and
// reports press and release of Ctrl+Shift+Space. Autorepeat (value 2) is ignored.
type comboTracker struct {
	ctrl, shift, held bool
}

func (c *comboTracker) feed(code uint16, value int32) edge {
	pressed := value == keyPress
	released := value == keyRelease

	switch code {
	case keyLCtrl, keyRCtrl:
		c.ctrl = pressed || (!released && c.ctrl)
	case keyLShift, keyRShift:
		c.shift = pressed || (!released && c.shift)
	case keySpace:
		if pressed && !c.held && c.ctrl && c.shift {
			c.held = true
			return edgeDown
		}
		if released && c.held {
			c.held = false
			return edgeUp
		}
	}
	return edgeNone
}

// decode walks whole input_event records in buf and calls fn for each edge.
func (c *comboTracker) decode(buf []byte, fn func(edge)) {
	for i := 0; i+inputEventSize <= len(buf); i += inputEventSize {
		if binary.LittleEndian.Uint16(buf[i+16:]) != evKey {
			continue
		}
		code := binary.LittleEndian.Uint16(buf[i+18:])
		value := int32(binary.LittleEndian.Uint32(buf[i+20:]))
		if e := c.feed(code, value); e != edgeNone {
			fn(e)
		}
	}
}
