package records

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// NewMsgpackHandle returns the handle used to frame values on the wire.
func NewMsgpackHandle() *codec.MsgpackHandle {
	mh := new(codec.MsgpackHandle)
	mh.WriteExt = true
	mh.RawToString = true
	return mh
}

func newJSONHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}

func marshal(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, newJSONHandle())
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func unmarshal(data []byte, v interface{}) error {
	dec := codec.NewDecoder(bytes.NewBuffer(data), newJSONHandle())
	return dec.Decode(v)
}

// Marshal returns the canonical JSON encoding of the request.
func (r *Request) Marshal() ([]byte, error) {
	return marshal(r)
}

// Unmarshal parses data produced by Marshal.
func (r *Request) Unmarshal(data []byte) error {
	return unmarshal(data, r)
}

// Marshal returns the canonical JSON encoding of the entry.
func (e *TimetableEntry) Marshal() ([]byte, error) {
	return marshal(e)
}

// Unmarshal parses data produced by Marshal.
func (e *TimetableEntry) Unmarshal(data []byte) error {
	return unmarshal(data, e)
}
