package outfit

import "encoding/json"

// noneSentinel is the wire form of an empty slot value. Persisted data from
// older clients uses this literal string, so marshalling must keep emitting it.
const noneSentinel = "None"

// Value is a slot's worn value. The zero Value is empty ("nothing worn").
type Value struct {
	text string
	worn bool
}

// NewValue builds a Value from raw text. The literal "None" and the empty
// string both map to the empty Value.
func NewValue(text string) Value {
	if text == "" || text == noneSentinel {
		return Value{}
	}
	return Value{text: text, worn: true}
}

// IsEmpty reports whether nothing is worn in this slot.
func (v Value) IsEmpty() bool { return !v.worn }

// Text returns the worn value, or "" when empty.
func (v Value) Text() string {
	if !v.worn {
		return ""
	}
	return v.text
}

// String returns the serialized form: the value text, or "None" when empty.
func (v Value) String() string {
	if !v.worn {
		return noneSentinel
	}
	return v.text
}

// MarshalJSON writes the value in its wire form ("None" for empty).
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON reads the wire form back; "None" becomes the empty Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = NewValue(s)
	return nil
}
