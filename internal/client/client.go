// Package client implements the unprivileged dispatcher: it selects an
// operation variant from user-supplied inputs, resolves the target path,
// runs the unprivileged prepare step, and carries out the IPC call (plus
// the Invoke follow-up round-trip). Grounded on the original daemon's
// Client.call_daemon (daemon.py), generalized to the full operation set.
package client

import (
	"bytes"
	"net"
	"path/filepath"

	"fstokend/internal/acl"
	"fstokend/internal/config"
	"fstokend/internal/editor"
	"fstokend/internal/ipc"
	"fstokend/internal/kind"
	"fstokend/internal/operation"
	"fstokend/internal/token"
)

// Request is the set of CLI-level inputs the dispatcher selects an
// operation from.
type Request struct {
	Path    string
	Encrypt bool
	Rotate  bool
	Delete  bool
	Grant   string
	Subject string
	Token   string
}

// Response carries whatever the broker returned, shaped for the CLI to
// print: Payload is empty/hidden for operations with nothing meaningful
// to show the user.
type Response struct {
	Payload []byte
	Hidden  bool
}

// Client runs requests against a single broker socket.
type Client struct {
	cfg    *config.Config
	acl    acl.Collaborator
	editor editor.Session
}

func New(cfg *config.Config, collab acl.Collaborator, session editor.Session) *Client {
	return &Client{cfg: cfg, acl: collab, editor: session}
}

// Run resolves req's path, selects the operation, runs its unprivileged
// step, and dispatches it to the broker.
func (c *Client) Run(req Request) (Response, error) {
	resolved, err := resolvePath(req.Path)
	if err != nil {
		return Response{}, err
	}

	selected := operation.Select(operation.SelectInput{
		Delete:  req.Delete,
		Encrypt: req.Encrypt,
		Rotate:  req.Rotate,
		Grant:   req.Grant,
		Subject: req.Subject,
		Token:   req.Token,
	})

	op := &operation.Op{
		Kind:    selected,
		Path:    resolved,
		Encrypt: req.Encrypt,
		Rotate:  req.Rotate,
		Grant:   req.Grant,
		Subject: req.Subject,
		Token:   req.Token,
	}

	if err := op.Prepare(c.acl); err != nil {
		return Response{}, err
	}

	conn, err := net.Dial("unix", c.cfg.SocketPath)
	if err != nil {
		return Response{}, kind.Wrap(kind.ConnectRefused, "connecting to broker", err)
	}
	defer conn.Close()

	if err := ipc.WriteFrame(conn, ipc.NewOperation(op).Encode()); err != nil {
		return Response{}, err
	}
	respMsg, err := readResponse(conn, c.cfg.MaxFrameBytes)
	if err != nil {
		return Response{}, err
	}
	if respMsg.Err != "" {
		return Response{}, kind.New(kind.Unexpected, respMsg.Err)
	}

	if selected == operation.Invoke {
		return c.followUpInvoke(conn, respMsg)
	}

	return responseFrom(respMsg), nil
}

func (c *Client) followUpInvoke(conn net.Conn, respMsg ipc.Message) (Response, error) {
	path, content, grantRepr, ok := respMsg.InvokeResult()
	if !ok {
		return Response{}, kind.New(kind.MalformedPayload, "expected an invoke result from the broker")
	}

	writable := grantRepr == token.GrantReadWrite.Repr()
	edited, err := c.editor.Edit(content, writable)
	if err != nil {
		return Response{}, err
	}

	if bytes.Equal(edited, content) {
		return Response{Payload: edited}, nil
	}

	if err := ipc.WriteFrame(conn, ipc.NewInvokeFollowup(path, edited).Encode()); err != nil {
		return Response{}, err
	}
	followupResp, err := readResponse(conn, c.cfg.MaxFrameBytes)
	if err != nil {
		return Response{}, err
	}
	if followupResp.Err != "" {
		return Response{}, kind.New(kind.Unexpected, followupResp.Err)
	}

	return Response{Payload: edited}, nil
}

func readResponse(conn net.Conn, maxFrame uint32) (ipc.Message, error) {
	frame, err := ipc.ReadFrame(conn, maxFrame)
	if err != nil {
		return ipc.Message{}, err
	}
	return ipc.Decode(frame)
}

func responseFrom(msg ipc.Message) Response {
	if b, ok := msg.Bytes(); ok {
		return Response{Payload: b, Hidden: msg.HidePayload}
	}
	if s, ok := msg.String(); ok {
		return Response{Payload: []byte(s), Hidden: msg.HidePayload}
	}
	return Response{}
}

func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", kind.Wrap(kind.FileNotFound, "resolving "+path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", kind.Wrap(kind.FileNotFound, "resolving "+path, err)
	}
	return resolved, nil
}
