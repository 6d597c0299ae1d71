package mqtt

// message is a serialized publish waiting for the broker.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable. When it
// is full the oldest message is evicted. Callers synchronize access.
type outbox struct {
	msgs    []message
	limit   int
	evicted int // since the last take
}

func newOutbox(limit int) *outbox {
	return &outbox{msgs: make([]message, 0, limit), limit: limit}
}

// add queues m and reports whether the oldest message was evicted for it.
func (o *outbox) add(m message) bool {
	if len(o.msgs) < o.limit {
		o.msgs = append(o.msgs, m)
		return false
	}
	copy(o.msgs, o.msgs[1:])
	o.msgs[len(o.msgs)-1] = m
	o.evicted++
	return true
}

// take empties the outbox, returning queued messages oldest first and the
// number evicted since the previous take.
func (o *outbox) take() ([]message, int) {
	if len(o.msgs) == 0 {
		n := o.evicted
		o.evicted = 0
		return nil, n
	}
	out := make([]message, len(o.msgs))
	copy(out, o.msgs)
	n := o.evicted
	o.msgs = o.msgs[:0]
	o.evicted = 0
	return out, n
}

func (o *outbox) size() int {
	return len(o.msgs)
}
