package broker

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fstokend/internal/catalog"
	"fstokend/internal/config"
	"fstokend/internal/identity"
	"fstokend/internal/ipc"
	"fstokend/internal/operation"
)

func newTestBroker(t *testing.T) (*Broker, *config.Config) {
	t.Helper()
	dir := t.TempDir()

	cat, err := catalog.Open(filepath.Join(dir, "keystore.db"))
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	ident := identity.New(filepath.Join(dir, "fskeys"))
	if err := ident.Init(false); err != nil {
		t.Fatalf("identity.Init: %v", err)
	}

	cfg := &config.Config{
		SocketPath:    filepath.Join(dir, "fstokend.sock"),
		MaxFrameBytes: config.DefaultMaxFrameBytes,
		IdleTimeout:   5 * time.Second,
	}
	b := New(cfg, &operation.Deps{Catalog: cat, Identity: ident})

	done := make(chan error, 1)
	go func() { done <- b.ListenAndServe() }()
	t.Cleanup(func() {
		b.Shutdown()
		<-done
	})

	waitForSocket(t, cfg.SocketPath)
	return b, cfg
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s never appeared", path)
}

func call(t *testing.T, sock string, msg ipc.Message, maxFrame uint32) ipc.Message {
	t.Helper()
	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dialing broker: %v", err)
	}
	defer conn.Close()

	if err := ipc.WriteFrame(conn, msg.Encode()); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frame, err := ipc.ReadFrame(conn, maxFrame)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	resp, err := ipc.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return resp
}

func TestBrokerRemovesStaleSocketAndListens(t *testing.T) {
	_, cfg := newTestBroker(t)
	if _, err := os.Stat(cfg.SocketPath); err != nil {
		t.Fatalf("expected socket file to exist: %v", err)
	}
}

func TestBrokerRejectsUnpreparedOperation(t *testing.T) {
	_, cfg := newTestBroker(t)
	path := filepath.Join(t.TempDir(), "a.txt")
	os.WriteFile(path, []byte("hi"), 0o600)

	op := &operation.Op{Kind: operation.Add, Path: path}
	resp := call(t, cfg.SocketPath, ipc.NewOperation(op), cfg.MaxFrameBytes)
	if resp.Err == "" {
		t.Fatal("expected NotAllowed error for an unprepared operation")
	}
}

func TestBrokerAddOverSocket(t *testing.T) {
	_, cfg := newTestBroker(t)
	path := filepath.Join(t.TempDir(), "a.txt")
	os.WriteFile(path, []byte("hi"), 0o600)

	op := &operation.Op{Kind: operation.Add, Path: path, Prepared: true}
	resp := call(t, cfg.SocketPath, ipc.NewOperation(op), cfg.MaxFrameBytes)
	if resp.Err != "" {
		t.Fatalf("unexpected error: %s", resp.Err)
	}
	key, ok := resp.Bytes()
	if !ok || len(key) != 32 {
		t.Fatalf("expected a 32-byte file key payload, got ok=%v len=%d", ok, len(key))
	}
}

func TestBrokerInvokeRoundTripOverSocket(t *testing.T) {
	_, cfg := newTestBroker(t)
	path := filepath.Join(t.TempDir(), "a.txt")
	os.WriteFile(path, []byte("original"), 0o600)

	addResp := call(t, cfg.SocketPath, ipc.NewOperation(&operation.Op{Kind: operation.Add, Path: path, Prepared: true}), cfg.MaxFrameBytes)
	if addResp.Err != "" {
		t.Fatalf("Add: %s", addResp.Err)
	}

	delegateResp := call(t, cfg.SocketPath, ipc.NewOperation(&operation.Op{
		Kind: operation.Delegate, Path: path, Grant: "read", Subject: "alice", Prepared: true,
	}), cfg.MaxFrameBytes)
	if delegateResp.Err != "" {
		t.Fatalf("Delegate: %s", delegateResp.Err)
	}
	tok, ok := delegateResp.String()
	if !ok || tok == "" {
		t.Fatalf("expected a token string payload, got ok=%v", ok)
	}

	conn, err := net.Dial("unix", cfg.SocketPath)
	if err != nil {
		t.Fatalf("dialing broker: %v", err)
	}
	defer conn.Close()

	invokeOp := &operation.Op{Kind: operation.Invoke, Path: path, Token: tok, Prepared: true}
	if err := ipc.WriteFrame(conn, ipc.NewOperation(invokeOp).Encode()); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frame, err := ipc.ReadFrame(conn, cfg.MaxFrameBytes)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	resp, err := ipc.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	respPath, content, grant, ok := resp.InvokeResult()
	if !ok {
		t.Fatalf("expected an invoke result payload, err=%q", resp.Err)
	}
	if respPath != path || string(content) != "original" || grant != "r" {
		t.Errorf("InvokeResult = (%q, %q, %q)", respPath, content, grant)
	}
}
