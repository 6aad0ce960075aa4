package aflib

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AferoCE/aflib-go/hubbyrpc"
)

// SDKVersion is reported to hubby in the session hello.
const SDKVersion = "1.0.0"

// Client is the firmware side of the hubby attribute session. It owns the
// IPC connection, dispatches service-originated set requests and value
// notifications to registered handlers, and reconnects with backoff when
// the session breaks.
type Client struct {
	cfg Config
	log Logger

	handlersMu             sync.RWMutex
	setHandler             SetHandler
	notifyHandler          NotifyHandler
	connectHandler         ConnectHandler
	ipcDisconnectedHandler IPCDisconnectedHandler

	profileMu sync.RWMutex
	profile   *Profile

	registry *AttributeRegistry

	asyncSet atomic.Bool

	cc *grpc.ClientConn

	// streamMu serializes Send calls and guards stream replacement.
	streamMu sync.Mutex
	stream   hubbyrpc.AttributeService_OpenSessionClient

	sessionUp atomic.Bool
	serviceUp atomic.Bool

	pendingMu   sync.Mutex
	pendingSets map[uint16]string // attr id -> request id awaiting ConfirmAttr

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewClient creates a client from cfg. Call Start to open the session.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:         cfg,
		log:         cfg.Logger,
		registry:    NewAttributeRegistry(),
		pendingSets: make(map[uint16]string),
	}, nil
}

// Init creates a client, registers the set and notify handlers, and starts
// the session. It is the one-call entry point for simple firmware.
func Init(ctx context.Context, cfg Config, set SetHandler, notify NotifyHandler) (*Client, error) {
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	c.OnSet(set)
	c.OnNotify(notify)
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// OnSet registers the handler for service-originated attribute writes.
func (c *Client) OnSet(h SetHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.setHandler = h
}

// OnNotify registers the handler for attribute value notifications.
func (c *Client) OnNotify(h NotifyHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.notifyHandler = h
}

// SetConnectHandler registers a handler for changes in the hub's connection
// to the Afero service.
func (c *Client) SetConnectHandler(h ConnectHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.connectHandler = h
}

// SetIPCDisconnectedHandler registers a handler for loss of the IPC
// connection to hubby (typically because hubby exited).
func (c *Client) SetIPCDisconnectedHandler(h IPCDisconnectedHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.ipcDisconnectedHandler = h
}

// HandleSetAsync controls set-request confirmation. When async is true the
// SetHandler return value is ignored and the firmware must call ConfirmAttr
// to accept or reject each service set request.
func (c *Client) HandleSetAsync(async bool) { c.asyncSet.Store(async) }

// AttachProfile gives the client a loaded profile for validating outbound
// attribute writes against max_length and fixed type widths.
func (c *Client) AttachProfile(p *Profile) {
	c.profileMu.Lock()
	defer c.profileMu.Unlock()
	c.profile = p
}

// Profile returns the attached profile, or nil.
func (c *Client) Profile() *Profile {
	c.profileMu.RLock()
	defer c.profileMu.RUnlock()
	return c.profile
}

// Registry returns the client's attribute value cache. Service notifications
// are recorded there before the NotifyHandler runs.
func (c *Client) Registry() *AttributeRegistry { return c.registry }

// Connected reports whether the hub's link to the Afero service is up.
func (c *Client) Connected() bool { return c.serviceUp.Load() }

// SessionUp reports whether the IPC session to hubby is open.
func (c *Client) SessionUp() bool { return c.sessionUp.Load() }

// SetDebugLevel adjusts logging verbosity. Levels follow the hub's
// LOG_DEBUG settings: LogDebugOff (the default) through LogDebug4.
func (c *Client) SetDebugLevel(level int) {
	if l, ok := c.log.(interface{ SetDebugLevel(int) }); ok {
		l.SetDebugLevel(level)
	}
}

// Start dials hubby and runs the session loop until Stop.
func (c *Client) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return nil
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(hubbyrpc.CodecName)),
	}
	opts = append(opts, c.cfg.DialOptions...)
	cc, err := grpc.NewClient(c.cfg.HubbyAddr, opts...)
	if err != nil {
		c.running.Store(false)
		return fmt.Errorf("dial hubby %s: %w", c.cfg.HubbyAddr, err)
	}
	c.cc = cc
	c.stopCh = make(chan struct{})
	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// Stop closes the session and releases the connection. Unlike a broken
// session, a deliberate stop tears down session state without firing the
// connect or IPC-disconnected handlers.
func (c *Client) Stop(ctx context.Context) error {
	if !c.running.Swap(false) {
		return nil
	}
	close(c.stopCh)
	c.wg.Wait()

	c.streamMu.Lock()
	c.stream = nil
	c.streamMu.Unlock()
	c.sessionUp.Store(false)
	c.serviceUp.Store(false)

	c.pendingMu.Lock()
	c.pendingSets = make(map[uint16]string)
	c.pendingMu.Unlock()

	return c.cc.Close()
}

func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	backoff := c.cfg.ReconnectMin
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		hadSession, err := c.runSession(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.log.Debug("hubby session ended", "err", err.Error())
		}
		if hadSession {
			c.sessionDown()
			backoff = c.cfg.ReconnectMin
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > c.cfg.ReconnectMax {
			backoff = c.cfg.ReconnectMax
		}
	}
}

// runSession opens one session stream and pumps it until it breaks.
// hadSession reports whether the stream came up at all.
func (c *Client) runSession(ctx context.Context) (hadSession bool, err error) {
	stream, err := hubbyrpc.NewAttributeServiceClient(c.cc).OpenSession(ctx)
	if err != nil {
		return false, err
	}
	hello := &hubbyrpc.EdgeFrame{Hello: &hubbyrpc.Hello{
		DeviceId:   c.cfg.DeviceID,
		SdkVersion: SDKVersion,
	}}
	if err := stream.Send(hello); err != nil {
		return false, err
	}

	c.streamMu.Lock()
	c.stream = stream
	c.streamMu.Unlock()
	c.sessionUp.Store(true)
	c.log.Info("hubby session open", "addr", c.cfg.HubbyAddr, "device_id", c.cfg.DeviceID)

	for {
		frame, err := stream.Recv()
		if err != nil {
			return true, err
		}
		c.dispatch(frame)
	}
}

// sessionDown tears down session state and fires the disconnect handlers.
func (c *Client) sessionDown() {
	c.streamMu.Lock()
	c.stream = nil
	c.streamMu.Unlock()
	c.sessionUp.Store(false)

	c.pendingMu.Lock()
	c.pendingSets = make(map[uint16]string)
	c.pendingMu.Unlock()

	if c.serviceUp.Swap(false) {
		if h := c.connectHandlerSnapshot(); h != nil {
			h(false)
		}
	}
	c.handlersMu.RLock()
	h := c.ipcDisconnectedHandler
	c.handlersMu.RUnlock()
	if h != nil {
		h()
	}
}

func (c *Client) dispatch(frame *hubbyrpc.HubbyFrame) {
	switch {
	case frame.SetRequest != nil:
		c.handleServiceSet(frame.SetRequest)
	case frame.Notify != nil:
		c.handleNotify(frame.Notify)
	case frame.SetResult != nil:
		c.log.Debug("set result",
			"attr_id", frame.SetResult.AttrId,
			"request_id", frame.SetResult.RequestId,
			"status", frame.SetResult.Status)
	case frame.Connection != nil:
		up := frame.Connection.Connected
		if c.serviceUp.Swap(up) != up {
			c.log.Info("service connection changed", "connected", up)
			if h := c.connectHandlerSnapshot(); h != nil {
				h(up)
			}
		}
	default:
		c.log.Warn("unrecognized frame from hubby")
	}
}

func (c *Client) handleServiceSet(req *hubbyrpc.SetRequest) {
	if req.AttrId > math.MaxUint16 {
		c.log.Warn("dropping set request with out-of-range attr id", "attr_id", req.AttrId)
		return
	}
	attrID := uint16(req.AttrId)
	c.handlersMu.RLock()
	h := c.setHandler
	c.handlersMu.RUnlock()

	if c.asyncSet.Load() {
		// The handler's verdict comes later via ConfirmAttr. A newer
		// request for the same attribute supersedes the older one, which
		// gets rejected so hubby can close it out.
		c.pendingMu.Lock()
		superseded, hadPending := c.pendingSets[attrID]
		c.pendingSets[attrID] = req.RequestId
		c.pendingMu.Unlock()
		if hadPending {
			if err := c.sendSetReply(superseded, false, "superseded by a newer set request"); err != nil {
				c.log.Warn("superseded set reply failed", "attr_id", attrID, "err", err.Error())
			}
		}
		if h != nil {
			_ = h(attrID, req.Value)
		}
		return
	}

	accepted := false
	if h != nil {
		accepted = h(attrID, req.Value)
	}
	if err := c.sendSetReply(req.RequestId, accepted, ""); err != nil {
		c.log.Warn("set reply failed", "attr_id", attrID, "err", err.Error())
		return
	}
	if accepted {
		if err := c.registry.Set(attrID, req.Value); err != nil {
			c.log.Warn("registry update failed", "attr_id", attrID, "err", err.Error())
		}
	}
}

func (c *Client) handleNotify(n *hubbyrpc.Notify) {
	if n.AttrId > math.MaxUint16 {
		c.log.Warn("dropping notify with out-of-range attr id", "attr_id", n.AttrId)
		return
	}
	attrID := uint16(n.AttrId)
	if err := c.registry.Set(attrID, n.Value); err != nil {
		c.log.Warn("registry update failed", "attr_id", attrID, "err", err.Error())
	}
	c.handlersMu.RLock()
	h := c.notifyHandler
	c.handlersMu.RUnlock()
	if h != nil {
		h(attrID, n.Value)
	}
}

// ConfirmAttr accepts or rejects a pending service set request. It is only
// valid in async set mode (see HandleSetAsync) and only while a request for
// the attribute is pending.
func (c *Client) ConfirmAttr(attrID uint16, accepted bool) error {
	if !c.asyncSet.Load() {
		return fmt.Errorf("confirm attr %d: async set handling is off: %w", attrID, StatusInvalidParam)
	}
	c.pendingMu.Lock()
	reqID, ok := c.pendingSets[attrID]
	if ok {
		delete(c.pendingSets, attrID)
	}
	c.pendingMu.Unlock()
	if !ok {
		return fmt.Errorf("confirm attr %d: no pending set request: %w", attrID, StatusInvalidParam)
	}
	return c.sendSetReply(reqID, accepted, "")
}

// GetAttribute requests the current value of an attribute. The result is
// delivered via the NotifyHandler.
func (c *Client) GetAttribute(attrID uint16) error {
	return c.sendFrame(&hubbyrpc.EdgeFrame{Get: &hubbyrpc.GetRequest{
		AttrId:    uint32(attrID),
		RequestId: uuid.NewString(),
	}})
}

// SetAttributeBytes requests an attribute to be set to a raw value.
func (c *Client) SetAttributeBytes(attrID uint16, value []byte) error {
	var attr *Attribute
	if p := c.Profile(); p != nil {
		attr = p.FindAttribute(attrID)
	}
	if err := ValidateValue(attr, value); err != nil {
		return err
	}
	return c.sendFrame(&hubbyrpc.EdgeFrame{Set: &hubbyrpc.SetRequest{
		AttrId:    uint32(attrID),
		Value:     value,
		RequestId: uuid.NewString(),
	}})
}

// Typed variants of SetAttributeBytes, for convenience.

func (c *Client) SetAttributeBool(attrID uint16, value bool) error {
	return c.SetAttributeBytes(attrID, EncodeBool(value))
}

func (c *Client) SetAttributeI8(attrID uint16, value int8) error {
	return c.SetAttributeBytes(attrID, EncodeI8(value))
}

func (c *Client) SetAttributeI16(attrID uint16, value int16) error {
	return c.SetAttributeBytes(attrID, EncodeI16(value))
}

func (c *Client) SetAttributeI32(attrID uint16, value int32) error {
	return c.SetAttributeBytes(attrID, EncodeI32(value))
}

func (c *Client) SetAttributeI64(attrID uint16, value int64) error {
	return c.SetAttributeBytes(attrID, EncodeI64(value))
}

func (c *Client) SetAttributeFixed1616(attrID uint16, value float64) error {
	return c.SetAttributeBytes(attrID, EncodeFixed1616(value))
}

func (c *Client) SetAttributeFixed3232(attrID uint16, value float64) error {
	return c.SetAttributeBytes(attrID, EncodeFixed3232(value))
}

func (c *Client) SetAttributeStr(attrID uint16, value string) error {
	return c.SetAttributeBytes(attrID, EncodeString(value))
}

func (c *Client) sendSetReply(requestID string, accepted bool, message string) error {
	return c.sendFrame(&hubbyrpc.EdgeFrame{SetReply: &hubbyrpc.SetReply{
		RequestId: requestID,
		Accepted:  accepted,
		Message:   message,
	}})
}

func (c *Client) sendFrame(f *hubbyrpc.EdgeFrame) error {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if c.stream == nil {
		return StatusUnavailable
	}
	if err := c.stream.Send(f); err != nil {
		return fmt.Errorf("send to hubby: %w", err)
	}
	return nil
}

func (c *Client) connectHandlerSnapshot() ConnectHandler {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	return c.connectHandler
}
