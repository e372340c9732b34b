// Package broker implements the privileged daemon loop: it owns the
// socket and the catalog, accepts one connection per worker goroutine,
// and executes each operation's privileged step. It is grounded on the
// original daemon's Daemon.main accept loop (daemon.py), reworked from a
// ThreadPoolExecutor-per-request submission into one goroutine per
// connection — Go's native answer to the spec's "parallel OS threads"
// requirement.
package broker

import (
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"fstokend/internal/config"
	"fstokend/internal/ipc"
	"fstokend/internal/kind"
	"fstokend/internal/log"
	"fstokend/internal/operation"
)

const socketMode = 0o660

// Broker owns the socket and dispatches accepted connections to workers.
type Broker struct {
	cfg  *config.Config
	deps *operation.Deps

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

func New(cfg *config.Config, deps *operation.Deps) *Broker {
	return &Broker{cfg: cfg, deps: deps}
}

// ListenAndServe removes any stale socket file, binds, chmods, and
// listens, returning only once Shutdown has been called and all workers
// have drained.
func (b *Broker) ListenAndServe() error {
	if err := removeStaleSocket(b.cfg.SocketPath); err != nil {
		return err
	}

	listener, err := net.Listen("unix", b.cfg.SocketPath)
	if err != nil {
		return kind.Wrap(kind.Io, "binding socket", err)
	}
	if err := os.Chmod(b.cfg.SocketPath, socketMode); err != nil {
		listener.Close()
		return kind.Wrap(kind.PermissionDenied, "chmod socket", err)
	}

	b.mu.Lock()
	b.listener = listener
	b.mu.Unlock()

	log.Info("broker listening", log.String("socket", b.cfg.SocketPath))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if isClosedErr(err) {
				b.wg.Wait()
				return nil
			}
			log.Warn("accept failed", log.String("error", err.Error()))
			continue
		}

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting new connections and removes the socket file.
// Outstanding workers are left to finish; ListenAndServe returns once
// they drain.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	listener := b.listener
	b.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	os.Remove(b.cfg.SocketPath)
}

func (b *Broker) handleConn(conn net.Conn) {
	requestID := uuid.New().String()
	logger := log.GetLogger().WithFields(log.String("request_id", requestID))
	defer conn.Close()

	if b.cfg.IdleTimeout > 0 {
		conn.SetDeadline(time.Now().Add(b.cfg.IdleTimeout))
	}

	frame, err := ipc.ReadFrame(conn, b.cfg.MaxFrameBytes)
	if err != nil {
		logger.Warn("reading request frame", log.String("error", err.Error()))
		return
	}

	msg, err := ipc.Decode(frame)
	if err != nil {
		b.reply(conn, ipc.NewEmpty(err.Error()))
		return
	}

	op, ok := msg.Operation()
	if !ok {
		b.reply(conn, ipc.NewEmpty(kind.New(kind.MalformedPayload, "expected an operation request").Error()))
		return
	}

	logger.Info("dispatching operation", log.String("kind", op.Kind.String()), log.String("path", op.Path))

	result, execErr := b.safeExecute(op)
	if execErr != nil {
		logger.Warn("operation failed", log.String("error", execErr.Error()))
		b.reply(conn, ipc.NewEmpty(execErr.Error()))
		return
	}

	if result.Kind == operation.Invoke {
		b.replyInvoke(conn, logger, op.Path, result)
		return
	}

	b.reply(conn, responseFor(result))
}

// safeExecute recovers from a panic inside the privileged step, wrapping
// it as an Unexpected error instead of letting it cross the worker
// boundary — the broker never panics to the client.
func (b *Broker) safeExecute(op *operation.Op) (result operation.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = kind.New(kind.Unexpected, "panic in privileged step")
		}
	}()
	return op.Execute(b.deps)
}

func (b *Broker) replyInvoke(conn net.Conn, logger log.Logger, path string, result operation.Result) {
	b.reply(conn, ipc.NewInvokeResult(path, result.Content, result.Grant.Repr()))

	followupFrame, err := ipc.ReadFrame(conn, b.cfg.MaxFrameBytes)
	if err != nil {
		logger.Warn("reading invoke followup frame", log.String("error", err.Error()))
		return
	}
	followup, err := ipc.Decode(followupFrame)
	if err != nil {
		b.reply(conn, ipc.NewEmpty(err.Error()))
		return
	}
	followupPath, content, ok := followup.InvokeFollowup()
	if !ok {
		b.reply(conn, ipc.NewEmpty(kind.New(kind.MalformedPayload, "expected an invoke followup").Error()))
		return
	}

	if err := operation.InvokeFollowup(b.deps, followupPath, content); err != nil {
		b.reply(conn, ipc.NewEmpty(err.Error()))
		return
	}
	b.reply(conn, ipc.NewEmpty(""))
}

func (b *Broker) reply(conn net.Conn, msg ipc.Message) {
	if err := ipc.WriteFrame(conn, msg.Encode()); err != nil {
		log.Warn("writing response frame", log.String("error", err.Error()))
	}
}

func responseFor(result operation.Result) ipc.Message {
	switch result.Kind {
	case operation.Add:
		return ipc.NewBytes(result.FileKey, result.HidePayload)
	case operation.Delete:
		return ipc.NewEmpty("")
	case operation.Delegate:
		return ipc.NewString(result.Token, result.HidePayload)
	default:
		return ipc.NewEmpty("")
	}
}

func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return kind.Wrap(kind.Io, "removing stale socket", err)
		}
	}
	return nil
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
