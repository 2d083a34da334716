package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/raftkit/raftd/internal/security"
)

// Handler answers an inbound JSON-RPC request. A nil result with a nil
// error suppresses the reply entirely (spec §4.2 dispatch rule 2: "a null
// return suppresses the reply").
type Handler func(peer string, params json.RawMessage) (json.RawMessage, error)

// ResultHandler observes the reply to a previously issued outbound call of
// a given method — this is how the Raft role machine learns the outcome of
// AppendEntries/RequestVote calls it made (spec §4.3).
type ResultHandler func(peer string, result json.RawMessage)

type methodEntry struct {
	handler Handler
	schema  *jsonschema.Schema
}

// HandleOption configures a registered method handler.
type HandleOption func(*methodEntry)

// WithSchema attaches a JSON Schema that inbound params must satisfy
// before the handler runs (§11.3 of SPEC_FULL.md).
func WithSchema(s *jsonschema.Schema) HandleOption {
	return func(e *methodEntry) { e.schema = s }
}

// command is submitted to the loop goroutine so every mutation of runtime
// state (the acall register, in particular) happens on the single
// reactor thread, per spec §5's concurrency model.
type command interface{}

type cmdTick struct{}
type cmdShutdown struct{ done chan struct{} }
type cmdFunc struct{ fn func() }

// Metrics receives counters from the reactor loop. All methods must
// tolerate being called from the reactor goroutine; implementations
// typically just increment a prometheus counter/gauge. Set via
// Runtime.SetMetrics; nil fields are skipped.
type Metrics struct {
	CallSent      func()
	RequestRecv   func()
	OutstandingAC func(n int)
	Reaped        func(n int)
}

// Runtime is the RPC Runtime of spec §4.2: it frames JSON-RPC 2.0 over an
// Endpoint, dispatches inbound requests to registered method handlers,
// correlates inbound results/errors to outstanding acalls, and reaps
// expired acalls on each external tick.
type Runtime struct {
	logger   *zap.Logger
	endpoint *Endpoint
	cipher   security.Cipher

	methods       map[string]methodEntry
	resultHandler map[string]ResultHandler

	idSeq atomic.Uint64

	acalls  map[string]*acall
	metrics Metrics

	commands chan command
	stopped  chan struct{}
}

// NewRuntime builds a Runtime bound to endpoint. Register handlers with
// HandleFunc/OnResult before calling Run — the method registries are not
// synchronized because they are only ever read after Run starts.
func NewRuntime(endpoint *Endpoint, cipher security.Cipher, logger *zap.Logger) *Runtime {
	if cipher == nil {
		cipher = security.Identity{}
	}
	return &Runtime{
		logger:        logger,
		endpoint:      endpoint,
		cipher:        cipher,
		methods:       make(map[string]methodEntry),
		resultHandler: make(map[string]ResultHandler),
		acalls:        make(map[string]*acall),
		commands:      make(chan command, 16),
		stopped:       make(chan struct{}),
	}
}

// SetMetrics attaches counters the reactor loop reports into. Must be
// called before Run starts receiving traffic.
func (r *Runtime) SetMetrics(m Metrics) {
	r.metrics = m
}

// HandleFunc registers an inbound request handler for method. Must be
// called before Run.
func (r *Runtime) HandleFunc(method string, h Handler, opts ...HandleOption) {
	e := methodEntry{handler: h}
	for _, opt := range opts {
		opt(&e)
	}
	r.methods[method] = e
}

// OnResult registers a handler invoked when a reply to an outbound call of
// method arrives (spec §4.2 dispatch rule 3). Must be called before Run.
func (r *Runtime) OnResult(method string, h ResultHandler) {
	r.resultHandler[method] = h
}

// Run drains the endpoint's inbound channel and the command channel until
// ctx is cancelled. It is the single reactor thread: every mutation of the
// acall register and every dispatch happens here, synchronously.
func (r *Runtime) Run(ctx context.Context) {
	defer close(r.stopped)
	for {
		select {
		case <-ctx.Done():
			r.cancelAll()
			return
		case dgram := <-r.endpoint.Inbound():
			r.handleInbound(dgram)
		case cmd := <-r.commands:
			if done, shutdown := r.handleCommand(cmd); shutdown {
				r.cancelAll()
				close(done)
				return
			}
		}
	}
}

// Stopped is closed once Run has returned and every outstanding acall has
// been cancelled.
func (r *Runtime) Stopped() <-chan struct{} {
	return r.stopped
}

// handleCommand processes one command. It returns (done, true) when the
// command is a shutdown request so Run can tear down and signal done after
// cancelling every outstanding acall.
func (r *Runtime) handleCommand(cmd command) (done chan struct{}, shutdown bool) {
	switch c := cmd.(type) {
	case cmdTick:
		r.reap()
	case cmdShutdown:
		return c.done, true
	case cmdFunc:
		c.fn()
	}
	return nil, false
}

// Submit schedules fn to run on the reactor thread, serialized with every
// other dispatch. Timer callbacks and any other cross-goroutine work that
// must observe/mutate Raft state go through here, since time.AfterFunc
// (internal/timer) fires on its own goroutine and would otherwise break
// the single-threaded reactor guarantee spec §5 relies on. Safe to call
// from any goroutine; silently dropped if the runtime has already stopped.
func (r *Runtime) Submit(fn func()) {
	select {
	case r.commands <- cmdFunc{fn: fn}:
	case <-r.stopped:
	}
}

// OnTick is called by the external tick bus subscription (spec §4.2's
// reaper, driven by "Application.tick!"). It is safe to call from any
// goroutine — it only enqueues a command for the loop.
func (r *Runtime) OnTick() {
	select {
	case r.commands <- cmdTick{}:
	case <-r.stopped:
	}
}

// reap scans the acall register for expired deadlines and completes them
// with a timeout, per spec §4.2.
func (r *Runtime) reap() {
	now := time.Now()
	var expired []string
	for id, a := range r.acalls {
		if !now.Before(a.deadline) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		a := r.acalls[id]
		delete(r.acalls, id)
		a.completeTimeout()
	}
	if r.metrics.Reaped != nil && len(expired) > 0 {
		r.metrics.Reaped(len(expired))
	}
	if r.metrics.OutstandingAC != nil {
		r.metrics.OutstandingAC(len(r.acalls))
	}
	if len(r.acalls) > MaxHealthyACalls {
		r.logger.Warn("too many registered acalls", zap.Int("count", len(r.acalls)))
	}
}

func (r *Runtime) cancelAll() {
	for id, a := range r.acalls {
		delete(r.acalls, id)
		a.completeCancelled()
	}
}

// handleInbound implements the dispatch rules of spec §4.2.
func (r *Runtime) handleInbound(dgram Datagram) {
	plain, err := r.cipher.Decrypt(dgram.From, dgram.Data)
	if err != nil {
		r.logger.Warn("decrypt failed, dropping datagram", zap.String("peer", dgram.From), zap.Error(err))
		return
	}

	kind, jsonrpcOK, ok := sniff(plain)
	if !ok || !jsonrpcOK {
		r.logger.Warn("dropping malformed or non-2.0 frame", zap.String("peer", dgram.From))
		return
	}

	switch kind {
	case kindRequest:
		r.handleRequest(dgram.From, plain)
	case kindResult:
		r.handleResult(dgram.From, plain)
	case kindError:
		r.handleError(dgram.From, plain)
	default:
		r.logger.Warn("dropping frame with no method/result/error", zap.String("peer", dgram.From))
	}
}

func (r *Runtime) handleRequest(peer string, raw []byte) {
	req, err := decodeRequest(raw)
	if err != nil {
		r.logger.Warn("dropping unparseable request", zap.String("peer", peer), zap.Error(err))
		return
	}
	if r.metrics.RequestRecv != nil {
		r.metrics.RequestRecv()
	}

	value, rpcErr := r.dispatchMethod(peer, req.Method, req.Params)
	if rpcErr != nil {
		r.reply(peer, req.ID, nil, rpcErr)
		return
	}
	if value == nil {
		return // null return suppresses the reply
	}
	r.reply(peer, req.ID, value, nil)
}

// dispatchMethod implements rpc_dispatch_method: the built-in Ping, then
// the method registry, then method-not-found.
func (r *Runtime) dispatchMethod(peer, method string, params json.RawMessage) (json.RawMessage, *Error) {
	if method == "Ping" {
		return dispatchPing(params), nil
	}

	entry, found := r.methods[method]
	if !found {
		return nil, NewError(CodeMethodNotFound, "Method not found", method)
	}

	if err := validateParams(entry.schema, params); err != nil {
		return nil, NewError(CodeInternalError, fmt.Sprintf("ValidationError:%s", err.Error()), nil)
	}

	value, err := entry.handler(peer, params)
	if err != nil {
		if rpcErr, ok := err.(*Error); ok {
			return nil, rpcErr
		}
		return nil, NewError(CodeInternalError, fmt.Sprintf("%T:%s", err, err.Error()), nil)
	}
	return value, nil
}

// dispatchPing implements the built-in Ping method. Its asymmetry is
// deliberate and preserved literally per spec §9: params == null returns
// "Pong"; any other JSON value, including [], is echoed back byte-equal.
func dispatchPing(params json.RawMessage) json.RawMessage {
	if len(params) == 0 || string(params) == "null" {
		return json.RawMessage(`"Pong"`)
	}
	return params
}

func (r *Runtime) handleResult(peer string, raw []byte) {
	res, err := decodeResult(raw)
	if err != nil {
		r.logger.Warn("dropping unparseable result", zap.String("peer", peer), zap.Error(err))
		return
	}

	a, found := r.acalls[res.ID]
	if found {
		delete(r.acalls, res.ID)
		a.completeResult(res.Result)
	}

	// Replies to fire-and-forget Call requests have no acall record; they
	// still reach the result handler registered for their method.
	var h ResultHandler
	if method, ok := methodOf(res.ID); ok {
		h = r.resultHandler[method]
	}
	if !found && h == nil {
		r.logger.Warn("received result for unknown id", zap.String("id", res.ID), zap.String("peer", peer))
		return
	}
	if h != nil {
		h(peer, res.Result)
	}
}

func (r *Runtime) handleError(peer string, raw []byte) {
	ef, err := decodeError(raw)
	if err != nil {
		r.logger.Warn("dropping unparseable error frame", zap.String("peer", peer), zap.Error(err))
		return
	}

	a, found := r.acalls[ef.ID]
	if !found {
		r.logger.Warn("received error for unknown id", zap.String("id", ef.ID), zap.String("peer", peer))
		return
	}
	delete(r.acalls, ef.ID)
	a.completeError(ef.Error)
}

// methodOf extracts the method name prefix of a request id of the form
// "<method>:<counter>".
func methodOf(id string) (string, bool) {
	i := strings.IndexByte(id, ':')
	if i < 0 {
		return "", false
	}
	return id[:i], true
}

func (r *Runtime) reply(peer, id string, value json.RawMessage, rpcErr *Error) {
	var frame []byte
	var err error
	if rpcErr != nil {
		frame, err = encodeError(id, rpcErr)
	} else {
		frame, err = encodeResult(id, value)
	}
	if err != nil {
		r.logger.Error("failed to encode reply", zap.Error(err))
		return
	}

	cipherFrame, err := r.cipher.Encrypt(peer, frame)
	if err != nil {
		r.logger.Error("failed to encrypt reply", zap.String("peer", peer), zap.Error(err))
		return
	}

	if err := r.endpoint.Send(peer, cipherFrame); err != nil {
		r.logger.Error("failed to send reply", zap.String("peer", peer), zap.Error(err))
	}
}

// send encodes, encrypts, and transmits a request frame for id/method/params.
func (r *Runtime) send(peer, id, method string, params any) error {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("rpc: marshal params: %w", err)
		}
		raw = b
	}

	frame, err := encodeRequest(id, method, raw)
	if err != nil {
		return fmt.Errorf("rpc: encode request: %w", err)
	}

	cipherFrame, err := r.cipher.Encrypt(peer, frame)
	if err != nil {
		return fmt.Errorf("rpc: encrypt request: %w", err)
	}

	if err := r.endpoint.Send(peer, cipherFrame); err != nil {
		return err
	}
	if r.metrics.CallSent != nil {
		r.metrics.CallSent()
	}
	return nil
}

// Call is the fire-and-forget outbound surface of spec §4.2: it assigns an
// id of the form "<method>:<counter>", encodes and sends the request, and
// returns the id immediately. Safe to call from any goroutine: it only
// touches the primary socket and an atomic counter, not the acall
// register.
func (r *Runtime) Call(peer, method string, params any) (string, error) {
	id := fmt.Sprintf("%s:%d", method, r.idSeq.Add(1))
	if err := r.send(peer, id, method, params); err != nil {
		return "", err
	}
	return id, nil
}

// ACall is the awaitable outbound surface of spec §4.2: it registers an
// outstanding-call record and sends the request as a single reactor-thread
// command, then blocks the calling goroutine until the reactor thread
// completes it with a result, an error, a timeout, or a shutdown
// cancellation. Registering before sending closes the window where a fast
// reply (loopback peers in particular) could reach handleResult before the
// id is known, which would otherwise be logged and dropped as "unknown id".
func (r *Runtime) ACall(ctx context.Context, peer, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	id := fmt.Sprintf("%s:%d", method, r.idSeq.Add(1))
	a := newACall(id, peer, method, timeout)

	sendErr := make(chan error, 1)
	cmd := cmdFunc{fn: func() {
		r.acalls[id] = a
		err := r.send(peer, id, method, params)
		if err != nil {
			delete(r.acalls, id)
		}
		sendErr <- err
	}}

	select {
	case r.commands <- cmd:
	case <-r.stopped:
		return nil, CancelledError()
	}

	select {
	case err := <-sendErr:
		if err != nil {
			return nil, err
		}
	case <-r.stopped:
		return nil, CancelledError()
	}

	select {
	case <-a.replyCh:
		return a.wait()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown cancels every outstanding acall and waits for Run to return.
// Mirrors RPC.finalize(app) in the original asab implementation.
func (r *Runtime) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case r.commands <- cmdShutdown{done: done}:
	case <-r.stopped:
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
