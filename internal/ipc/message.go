package ipc

import (
	"fstokend/internal/kind"
	"fstokend/internal/operation"
	"fstokend/internal/wire"
)

// payloadTag discriminates the shapes a Message's payload can take. The
// wire format is a fixed tag byte plus the variant's fields — never a
// generic encoder that could be fed an arbitrary type.
type payloadTag byte

const (
	payloadEmpty payloadTag = iota
	payloadString
	payloadBytes
	payloadOperation
	payloadInvokeResult
	payloadInvokeFollowup
)

// Message is the framed unit exchanged over the socket: a payload, an
// error string (empty on success), and a display hint telling the client
// whether to print the payload to standard out.
type Message struct {
	Err         string
	HidePayload bool

	tag payloadTag

	str   string
	bytes []byte
	op    *operation.Op

	invokePath    string
	invokeContent []byte
	invokeGrant   string

	followupPath    string
	followupContent []byte
}

// NewEmpty builds a Message carrying no payload, typically an error
// response.
func NewEmpty(errMsg string) Message {
	return Message{Err: errMsg, tag: payloadEmpty}
}

// NewString builds a Message carrying a plain string payload (e.g. a
// delegated token).
func NewString(s string, hide bool) Message {
	return Message{tag: payloadString, str: s, HidePayload: hide}
}

// NewBytes builds a Message carrying raw bytes (e.g. a file key).
func NewBytes(b []byte, hide bool) Message {
	return Message{tag: payloadBytes, bytes: b, HidePayload: hide}
}

// NewOperation builds a Message carrying an operation request, sent by
// the client as the first exchange of a call.
func NewOperation(op *operation.Op) Message {
	return Message{tag: payloadOperation, op: op}
}

// NewInvokeResult builds the broker's first-round Invoke response:
// content delivered by value alongside the grant the token authorized.
func NewInvokeResult(path string, content []byte, grantRepr string) Message {
	return Message{tag: payloadInvokeResult, invokePath: path, invokeContent: content, invokeGrant: grantRepr}
}

// NewInvokeFollowup builds the client's second-round Invoke message,
// returning edited content for the broker to write back.
func NewInvokeFollowup(path string, content []byte) Message {
	return Message{tag: payloadInvokeFollowup, followupPath: path, followupContent: content}
}

// String returns the string payload and whether the message actually
// carried one.
func (m Message) String() (string, bool) {
	return m.str, m.tag == payloadString
}

// Bytes returns the raw-bytes payload and whether the message actually
// carried one.
func (m Message) Bytes() ([]byte, bool) {
	return m.bytes, m.tag == payloadBytes
}

// Operation returns the operation payload and whether the message
// actually carried one.
func (m Message) Operation() (*operation.Op, bool) {
	return m.op, m.tag == payloadOperation
}

// InvokeResult returns the Invoke first-round payload fields and whether
// the message actually carried one.
func (m Message) InvokeResult() (path string, content []byte, grantRepr string, ok bool) {
	return m.invokePath, m.invokeContent, m.invokeGrant, m.tag == payloadInvokeResult
}

// InvokeFollowup returns the Invoke second-round payload fields and
// whether the message actually carried one.
func (m Message) InvokeFollowup() (path string, content []byte, ok bool) {
	return m.followupPath, m.followupContent, m.tag == payloadInvokeFollowup
}

// Encode serializes m to its wire form.
func (m Message) Encode() []byte {
	w := wire.NewWriter()
	w.PutString(m.Err)
	w.PutBool(m.HidePayload)
	w.PutByte(byte(m.tag))

	switch m.tag {
	case payloadEmpty:
	case payloadString:
		w.PutString(m.str)
	case payloadBytes:
		w.PutBytes(m.bytes)
	case payloadOperation:
		encodeOp(w, m.op)
	case payloadInvokeResult:
		w.PutString(m.invokePath)
		w.PutBytes(m.invokeContent)
		w.PutString(m.invokeGrant)
	case payloadInvokeFollowup:
		w.PutString(m.followupPath)
		w.PutBytes(m.followupContent)
	}
	return w.Bytes()
}

// Decode parses a Message from its wire form, rejecting any tag byte it
// does not recognize.
func Decode(data []byte) (Message, error) {
	r := wire.NewReader(data)

	errMsg, err := r.GetString()
	if err != nil {
		return Message{}, kind.Wrap(kind.MalformedPayload, "message err field", err)
	}
	hide, err := r.GetBool()
	if err != nil {
		return Message{}, kind.Wrap(kind.MalformedPayload, "message hide_payload field", err)
	}
	tagByte, err := r.GetByte()
	if err != nil {
		return Message{}, kind.Wrap(kind.MalformedPayload, "message tag field", err)
	}

	m := Message{Err: errMsg, HidePayload: hide, tag: payloadTag(tagByte)}

	switch m.tag {
	case payloadEmpty:
	case payloadString:
		m.str, err = r.GetString()
	case payloadBytes:
		m.bytes, err = r.GetBytes()
	case payloadOperation:
		m.op, err = decodeOp(r)
	case payloadInvokeResult:
		if m.invokePath, err = r.GetString(); err == nil {
			if m.invokeContent, err = r.GetBytes(); err == nil {
				m.invokeGrant, err = r.GetString()
			}
		}
	case payloadInvokeFollowup:
		if m.followupPath, err = r.GetString(); err == nil {
			m.followupContent, err = r.GetBytes()
		}
	default:
		return Message{}, kind.New(kind.MalformedPayload, "unknown message payload tag")
	}
	if err != nil {
		return Message{}, kind.Wrap(kind.MalformedPayload, "message payload body", err)
	}
	return m, nil
}

func encodeOp(w *wire.Writer, op *operation.Op) {
	w.PutByte(byte(op.Kind))
	w.PutString(op.Path)
	w.PutBool(op.Encrypt)
	w.PutBool(op.Rotate)
	w.PutString(op.Grant)
	w.PutString(op.Subject)
	w.PutString(op.Token)
	w.PutBool(op.Prepared)
}

func decodeOp(r *wire.Reader) (*operation.Op, error) {
	kindByte, err := r.GetByte()
	if err != nil {
		return nil, err
	}
	if kindByte > byte(operation.Invoke) {
		return nil, kind.New(kind.MalformedPayload, "unknown operation kind tag")
	}
	op := &operation.Op{Kind: operation.Kind(kindByte)}
	if op.Path, err = r.GetString(); err != nil {
		return nil, err
	}
	if op.Encrypt, err = r.GetBool(); err != nil {
		return nil, err
	}
	if op.Rotate, err = r.GetBool(); err != nil {
		return nil, err
	}
	if op.Grant, err = r.GetString(); err != nil {
		return nil, err
	}
	if op.Subject, err = r.GetString(); err != nil {
		return nil, err
	}
	if op.Token, err = r.GetString(); err != nil {
		return nil, err
	}
	if op.Prepared, err = r.GetBool(); err != nil {
		return nil, err
	}
	return op, nil
}
