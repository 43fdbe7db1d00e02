package ami

import (
	"strconv"
	"strings"
)

// Event is a raw manager-protocol event as an ordered set of key-value
// pairs. Key lookup is case-insensitive: devices and intermediate
// libraries disagree on header casing ("Uniqueid" vs "uniqueid").
type Event struct {
	headers []header
}

type header struct {
	Key   string
	Value string
}

// NewEvent builds an Event from alternating key/value strings.
func NewEvent(kvs ...string) Event {
	e := Event{}
	for i := 0; i+1 < len(kvs); i += 2 {
		e.headers = append(e.headers, header{Key: kvs[i], Value: kvs[i+1]})
	}
	return e
}

// Get returns the first value for the given key, or "" if absent.
func (e Event) Get(key string) string {
	for _, h := range e.headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

// Values returns every value carried under the given key. AMI repeats
// headers for list-valued fields such as Variable.
func (e Event) Values(key string) []string {
	var out []string
	for _, h := range e.headers {
		if strings.EqualFold(h.Key, key) {
			out = append(out, h.Value)
		}
	}
	return out
}

// Type returns the event name, or "" for non-event frames.
func (e Event) Type() string {
	return e.Get("Event")
}

// GetInt returns the integer value for the key, or 0 if missing or
// unparseable.
func (e Event) GetInt(key string) int {
	v, _ := strconv.Atoi(e.Get(key))
	return v
}

// IsResponse reports whether this frame is an action response rather
// than an unsolicited event.
func (e Event) IsResponse() bool {
	return e.Get("Response") != ""
}

// ActionID returns the correlation id echoed back on action responses.
func (e Event) ActionID() string {
	return e.Get("ActionID")
}

// Variable scans the event's Variable headers ("key=value" entries) for
// the named variable.
func (e Event) Variable(name string) (string, bool) {
	for _, v := range e.Values("Variable") {
		if k, val, ok := strings.Cut(v, "="); ok && strings.EqualFold(k, name) {
			return val, true
		}
	}
	return "", false
}
