package i8042

/*
 * x86pc - PS/2 auxiliary mouse: command state machine, accumulated
 * motion, and the IMPS/2 (wheel)/IMEX (wheel + buttons 4/5) protocol
 * escapes (spec.md §4.9).
 */

const mouseFIFOSize = 16

type mouseMode int

const (
	modePlain mouseMode = iota
	modeIMPS2
	modeIMEX
)

type ps2Mouse struct {
	queue []byte

	streaming bool
	mode      mouseMode

	dx, dy, dz int32
	buttons    uint8 // bit0 left, bit1 right, bit2 middle, bit3 button4, bit4 button5

	rateSeq [3]uint8 // last three sample-rate values, for the mode-escape sequences
	rateN   int

	awaitingParam bool
	pendingCmd    uint8
}

func newPS2Mouse() *ps2Mouse {
	return &ps2Mouse{}
}

func (m *ps2Mouse) reset() {
	*m = ps2Mouse{}
}

func (m *ps2Mouse) enqueue(b byte) {
	if len(m.queue) >= mouseFIFOSize {
		return
	}
	m.queue = append(m.queue, b)
}

func (m *ps2Mouse) ack() { m.enqueue(0xfa) }

// command processes one byte written to the mouse via the i8042
// 0xD4-prefixed path.
func (m *ps2Mouse) command(b byte) {
	if m.awaitingParam {
		m.awaitingParam = false
		switch m.pendingCmd {
		case 0xf3: // set sample rate
			m.rateSeq[0], m.rateSeq[1], m.rateSeq[2] = m.rateSeq[1], m.rateSeq[2], b
			m.rateN++
			m.checkModeEscape()
		}
		m.ack()
		return
	}
	switch b {
	case 0xff: // reset
		m.reset()
		m.ack()
		m.enqueue(0xaa)
		m.enqueue(0x00)
	case 0xf6: // set defaults
		m.streaming = false
		m.ack()
	case 0xf5: // disable data reporting
		m.streaming = false
		m.ack()
	case 0xf4: // enable data reporting
		m.streaming = true
		m.ack()
	case 0xf3: // set sample rate (1 param byte follows)
		m.awaitingParam = true
		m.pendingCmd = b
		m.ack()
	case 0xe8: // set resolution (1 param byte follows, value unused)
		m.awaitingParam = true
		m.pendingCmd = 0 // consume and discard the param with no special handling
		m.ack()
	case 0xe6, 0xe7: // set scaling 1:1 / 2:1
		m.ack()
	case 0xea: // set stream mode
		m.streaming = true
		m.ack()
	case 0xeb: // request one packet (remote mode)
		m.ack()
		m.emitPacket()
	case 0xf2: // get device ID
		m.ack()
		switch m.mode {
		case modeIMPS2:
			m.enqueue(0x03)
		case modeIMEX:
			m.enqueue(0x04)
		default:
			m.enqueue(0x00)
		}
	default:
		m.ack()
	}
}

// checkModeEscape recognizes the two sample-rate magic sequences that
// promote the device to IMPS/2 or IMEX (spec.md §4.9).
func (m *ps2Mouse) checkModeEscape() {
	if m.rateN < 3 {
		return
	}
	switch m.rateSeq {
	case [3]uint8{200, 100, 80}:
		m.mode = modeIMPS2
	case [3]uint8{200, 200, 80}:
		m.mode = modeIMEX
	}
}

// move accumulates a host motion/button event (spec.md §4.9); a
// streaming-mode packet is emitted immediately if there's FIFO room.
func (m *ps2Mouse) move(dx, dy, dz int32, buttons uint8) {
	m.dx += dx
	m.dy += dy
	m.dz += dz
	m.buttons = buttons
	if m.streaming {
		m.emitPacket()
	}
}

func clampMotion(v int32) (byte, bool) {
	overflow := v < -256 || v > 255
	if v < -128 {
		v = -128
	} else if v > 127 {
		v = 127
	}
	return byte(int8(v)), overflow
}

// emitPacket builds and enqueues one 3/4-byte PS/2 mouse packet and
// clears the accumulated motion (spec.md §4.9: sign/overflow bits per
// the PS/2 protocol; wheel byte for IMPS/2/IMEX).
func (m *ps2Mouse) emitPacket() {
	if len(m.queue)+4 > mouseFIFOSize {
		return
	}
	xByte, xOver := clampMotion(m.dx)
	yByte, yOver := clampMotion(m.dy)

	b0 := m.buttons & 0x07
	b0 |= 1 << 3 // bit3 always set (packet sync)
	if m.dx < 0 {
		b0 |= 1 << 4
	}
	if m.dy < 0 {
		b0 |= 1 << 5
	}
	if xOver {
		b0 |= 1 << 6
	}
	if yOver {
		b0 |= 1 << 7
	}

	m.enqueue(b0)
	m.enqueue(xByte)
	m.enqueue(yByte)

	if m.mode == modeIMPS2 {
		m.enqueue(byte(int8(clampWheel(m.dz))))
	} else if m.mode == modeIMEX {
		z := clampWheel(m.dz) & 0x0f
		extraButtons := (m.buttons >> 3) & 0x03
		m.enqueue(byte(z) | extraButtons<<4)
	}

	m.dx, m.dy, m.dz = 0, 0, 0
}

func clampWheel(v int32) int32 {
	if v < -8 {
		return -8
	}
	if v > 7 {
		return 7
	}
	return v
}
