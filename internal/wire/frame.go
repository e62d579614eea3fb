package wire

// Decoder accumulates bytes read off a transport and yields complete
// messages, leaving any trailing partial frame intact for the next read —
// the invariant both the dispatcher's inbound pass and the worker's receive
// loop rely on (§3 invariants, §5 suspension points).
type Decoder struct {
	buf []byte
}

// Feed appends newly read bytes to the decoder's internal buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next attempts to decode one message from the front of the buffer. It
// returns ok=false with a nil error when the buffer holds only a partial
// frame; the caller should stop draining and wait for more bytes. A non-nil
// error means the buffer contains a malformed frame that can never become
// valid by appending more bytes.
func (d *Decoder) Next() (msg Message, ok bool, err error) {
	m, n, err := Decode(d.buf)
	if err == ErrInsufficientData {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	d.buf = d.buf[n:]
	return m, true, nil
}

// DrainAll decodes every complete message currently buffered, in order,
// stopping at the first malformed frame or the first partial frame.
func (d *Decoder) DrainAll() ([]Message, error) {
	var out []Message
	for {
		m, ok, err := d.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, m)
	}
}

// Reset discards any buffered bytes, used after a Protocol error forces the
// caller to give up on resynchronizing mid-stream (§7).
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

// Pending reports how many undecoded bytes remain buffered.
func (d *Decoder) Pending() int {
	return len(d.buf)
}
