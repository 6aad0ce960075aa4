package aflib

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/AferoCE/aflib-go/hubbyrpc"
)

// fakeHubby is an in-memory hubby for session tests.
type fakeHubby struct {
	hubbyrpc.UnimplementedAttributeServiceServer
	sessions chan *fakeSession
}

type fakeSession struct {
	hello      *hubbyrpc.Hello
	stream     hubbyrpc.AttributeService_OpenSessionServer
	edgeFrames chan *hubbyrpc.EdgeFrame

	killOnce sync.Once
	kill     chan struct{}
}

func (s *fakeSession) send(t *testing.T, f *hubbyrpc.HubbyFrame) {
	t.Helper()
	require.NoError(t, s.stream.Send(f))
}

// close ends the session from the hubby side, as if hubby exited.
func (s *fakeSession) close() {
	s.killOnce.Do(func() { close(s.kill) })
}

func (f *fakeHubby) OpenSession(stream hubbyrpc.AttributeService_OpenSessionServer) error {
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	s := &fakeSession{
		hello:      first.Hello,
		stream:     stream,
		edgeFrames: make(chan *hubbyrpc.EdgeFrame, 64),
		kill:       make(chan struct{}),
	}
	f.sessions <- s

	recvErr := make(chan error, 1)
	go func() {
		for {
			fr, err := stream.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			s.edgeFrames <- fr
		}
	}()

	select {
	case err := <-recvErr:
		return err
	case <-s.kill:
		return status.Errorf(codes.Unavailable, "hubby shutting down")
	}
}

func startFakeHubby(t *testing.T) (*fakeHubby, Config) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	fake := &fakeHubby{sessions: make(chan *fakeSession, 4)}
	hubbyrpc.RegisterAttributeServiceServer(srv, fake)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	cfg := Config{
		HubbyAddr:    "passthrough:///bufnet",
		DeviceID:     "test-hub",
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
		Logger:       NewNopLogger(),
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	}
	return fake, cfg
}

func waitSession(t *testing.T, fake *fakeHubby) *fakeSession {
	t.Helper()
	select {
	case s := <-fake.sessions:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a session")
		return nil
	}
}

func waitEdgeFrame(t *testing.T, s *fakeSession) *hubbyrpc.EdgeFrame {
	t.Helper()
	select {
	case fr := <-s.edgeFrames:
		return fr
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an edge frame")
		return nil
	}
}

func startClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := NewClient(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Stop(context.Background()) })
	return c
}

func TestClientSessionHello(t *testing.T) {
	fake, cfg := startFakeHubby(t)
	startClient(t, cfg)

	s := waitSession(t, fake)
	require.NotNil(t, s.hello)
	assert.Equal(t, "test-hub", s.hello.DeviceId)
	assert.Equal(t, SDKVersion, s.hello.SdkVersion)
}

func TestInitRegistersHandlersAndStarts(t *testing.T) {
	fake, cfg := startFakeHubby(t)

	notified := make(chan uint16, 1)
	c, err := Init(context.Background(), cfg,
		func(attrID uint16, value []byte) bool { return true },
		func(attrID uint16, value []byte) { notified <- attrID },
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Stop(context.Background()) })

	s := waitSession(t, fake)
	s.send(t, &hubbyrpc.HubbyFrame{Notify: &hubbyrpc.Notify{AttrId: 8, Value: EncodeBool(true)}})

	select {
	case id := <-notified:
		assert.Equal(t, uint16(8), id)
	case <-time.After(5 * time.Second):
		t.Fatal("notify handler not called")
	}
}

func TestClientNotifyAndGet(t *testing.T) {
	fake, cfg := startFakeHubby(t)
	c := startClient(t, cfg)

	notified := make(chan uint16, 1)
	var notifiedValue []byte
	c.OnNotify(func(attrID uint16, value []byte) {
		notifiedValue = value
		notified <- attrID
	})

	s := waitSession(t, fake)
	s.send(t, &hubbyrpc.HubbyFrame{Notify: &hubbyrpc.Notify{AttrId: 3, Value: EncodeI32(17)}})

	select {
	case id := <-notified:
		assert.Equal(t, uint16(3), id)
		assert.Equal(t, EncodeI32(17), notifiedValue)
	case <-time.After(5 * time.Second):
		t.Fatal("notify handler not called")
	}

	// The notification also lands in the registry.
	v, ok := c.Registry().Get(3)
	require.True(t, ok)
	assert.Equal(t, EncodeI32(17), v)

	// A get produces a request frame; hubby answers via notify.
	require.NoError(t, c.GetAttribute(3))
	fr := waitEdgeFrame(t, s)
	require.NotNil(t, fr.Get)
	assert.Equal(t, uint32(3), fr.Get.AttrId)
	assert.NotEmpty(t, fr.Get.RequestId)
}

func TestClientServiceSetSync(t *testing.T) {
	fake, cfg := startFakeHubby(t)
	c := startClient(t, cfg)
	c.OnSet(func(attrID uint16, value []byte) bool {
		on, err := DecodeBool(value)
		return err == nil && on // accept only "true"
	})

	s := waitSession(t, fake)

	s.send(t, &hubbyrpc.HubbyFrame{SetRequest: &hubbyrpc.SetRequest{
		AttrId: 1, Value: EncodeBool(true), RequestId: "req-1",
	}})
	fr := waitEdgeFrame(t, s)
	require.NotNil(t, fr.SetReply)
	assert.Equal(t, "req-1", fr.SetReply.RequestId)
	assert.True(t, fr.SetReply.Accepted)

	s.send(t, &hubbyrpc.HubbyFrame{SetRequest: &hubbyrpc.SetRequest{
		AttrId: 1, Value: EncodeBool(false), RequestId: "req-2",
	}})
	fr = waitEdgeFrame(t, s)
	require.NotNil(t, fr.SetReply)
	assert.False(t, fr.SetReply.Accepted)
}

func TestClientServiceSetAsync(t *testing.T) {
	fake, cfg := startFakeHubby(t)
	c := startClient(t, cfg)
	c.HandleSetAsync(true)

	seen := make(chan uint16, 1)
	c.OnSet(func(attrID uint16, value []byte) bool {
		seen <- attrID
		return false // ignored in async mode
	})

	s := waitSession(t, fake)
	s.send(t, &hubbyrpc.HubbyFrame{SetRequest: &hubbyrpc.SetRequest{
		AttrId: 2, Value: EncodeI16(500), RequestId: "req-9",
	}})

	select {
	case id := <-seen:
		assert.Equal(t, uint16(2), id)
	case <-time.After(5 * time.Second):
		t.Fatal("set handler not called")
	}

	// No reply until the firmware confirms.
	select {
	case fr := <-s.edgeFrames:
		t.Fatalf("unexpected frame before confirm: %+v", fr)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, c.ConfirmAttr(2, true))
	fr := waitEdgeFrame(t, s)
	require.NotNil(t, fr.SetReply)
	assert.Equal(t, "req-9", fr.SetReply.RequestId)
	assert.True(t, fr.SetReply.Accepted)

	// A second confirm has nothing pending.
	assert.True(t, errors.Is(c.ConfirmAttr(2, true), StatusInvalidParam))
}

func TestClientServiceSetAsyncSuperseded(t *testing.T) {
	fake, cfg := startFakeHubby(t)
	c := startClient(t, cfg)
	c.HandleSetAsync(true)

	s := waitSession(t, fake)
	s.send(t, &hubbyrpc.HubbyFrame{SetRequest: &hubbyrpc.SetRequest{
		AttrId: 2, Value: EncodeI16(250), RequestId: "req-a",
	}})
	s.send(t, &hubbyrpc.HubbyFrame{SetRequest: &hubbyrpc.SetRequest{
		AttrId: 2, Value: EncodeI16(500), RequestId: "req-b",
	}})

	// The older request for the same attribute is rejected when the newer
	// one lands.
	fr := waitEdgeFrame(t, s)
	require.NotNil(t, fr.SetReply)
	assert.Equal(t, "req-a", fr.SetReply.RequestId)
	assert.False(t, fr.SetReply.Accepted)

	// Confirming answers the newer request.
	require.NoError(t, c.ConfirmAttr(2, true))
	fr = waitEdgeFrame(t, s)
	require.NotNil(t, fr.SetReply)
	assert.Equal(t, "req-b", fr.SetReply.RequestId)
	assert.True(t, fr.SetReply.Accepted)
}

func TestClientConfirmAttrRequiresAsyncMode(t *testing.T) {
	_, cfg := startFakeHubby(t)
	c := startClient(t, cfg)
	assert.True(t, errors.Is(c.ConfirmAttr(1, true), StatusInvalidParam))
}

func TestClientSetAttribute(t *testing.T) {
	fake, cfg := startFakeHubby(t)
	c := startClient(t, cfg)
	s := waitSession(t, fake)

	require.NoError(t, c.SetAttributeI16(2, 750))
	fr := waitEdgeFrame(t, s)
	require.NotNil(t, fr.Set)
	assert.Equal(t, uint32(2), fr.Set.AttrId)
	assert.Equal(t, EncodeI16(750), fr.Set.Value)
	assert.NotEmpty(t, fr.Set.RequestId)

	// Values over the API cap are rejected locally.
	err := c.SetAttributeBytes(2, make([]byte, MaxAttributeSize+1))
	assert.True(t, errors.Is(err, StatusInvalidParam))
}

func TestClientSetValidatesAgainstProfile(t *testing.T) {
	fake, cfg := startFakeHubby(t)
	c := startClient(t, cfg)
	waitSession(t, fake)

	p, err := NewProfile([]Attribute{
		{ID: 4, Type: AttributeTypeUTF8S, Flags: FlagRead | FlagWrite, MaxLength: 4},
	})
	require.NoError(t, err)
	c.AttachProfile(p)

	assert.NoError(t, c.SetAttributeStr(4, "abc"))
	assert.True(t, errors.Is(c.SetAttributeStr(4, "too long"), StatusInvalidParam))
}

func TestClientUnavailableBeforeSession(t *testing.T) {
	_, cfg := startFakeHubby(t)
	c, err := NewClient(cfg)
	require.NoError(t, err)

	// Not started: no session, so sends fail fast.
	assert.True(t, errors.Is(c.SetAttributeBool(1, true), StatusUnavailable))
	assert.True(t, errors.Is(c.GetAttribute(1), StatusUnavailable))
}

func TestClientConnectionStatus(t *testing.T) {
	fake, cfg := startFakeHubby(t)
	c := startClient(t, cfg)

	transitions := make(chan bool, 4)
	c.SetConnectHandler(func(connected bool) { transitions <- connected })

	s := waitSession(t, fake)
	s.send(t, &hubbyrpc.HubbyFrame{Connection: &hubbyrpc.ConnectionStatus{Connected: true}})

	select {
	case up := <-transitions:
		assert.True(t, up)
	case <-time.After(5 * time.Second):
		t.Fatal("connect handler not called")
	}
	assert.True(t, c.Connected())

	// Repeating the same status is not a transition.
	s.send(t, &hubbyrpc.HubbyFrame{Connection: &hubbyrpc.ConnectionStatus{Connected: true}})
	s.send(t, &hubbyrpc.HubbyFrame{Connection: &hubbyrpc.ConnectionStatus{Connected: false}})

	select {
	case up := <-transitions:
		assert.False(t, up)
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect transition not delivered")
	}
}

func TestClientDropsOutOfRangeAttrIDs(t *testing.T) {
	fake, cfg := startFakeHubby(t)
	c := startClient(t, cfg)

	notified := make(chan uint16, 2)
	c.OnNotify(func(attrID uint16, value []byte) { notified <- attrID })

	s := waitSession(t, fake)

	// 0x10001 would alias to attribute 1 if truncated to 16 bits.
	s.send(t, &hubbyrpc.HubbyFrame{Notify: &hubbyrpc.Notify{AttrId: 0x10001, Value: EncodeBool(true)}})
	s.send(t, &hubbyrpc.HubbyFrame{SetRequest: &hubbyrpc.SetRequest{
		AttrId: 0x10001, Value: EncodeBool(true), RequestId: "req-big",
	}})
	s.send(t, &hubbyrpc.HubbyFrame{Notify: &hubbyrpc.Notify{AttrId: 9, Value: EncodeBool(true)}})

	select {
	case id := <-notified:
		assert.Equal(t, uint16(9), id)
	case <-time.After(5 * time.Second):
		t.Fatal("notify handler not called")
	}
	_, ok := c.Registry().Get(1)
	assert.False(t, ok)

	// The malformed set request gets no reply.
	select {
	case fr := <-s.edgeFrames:
		t.Fatalf("unexpected frame: %+v", fr)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClientStopTearsDownSession(t *testing.T) {
	fake, cfg := startFakeHubby(t)
	c := startClient(t, cfg)

	ipcLost := make(chan struct{}, 1)
	c.SetIPCDisconnectedHandler(func() { ipcLost <- struct{}{} })

	s := waitSession(t, fake)
	s.send(t, &hubbyrpc.HubbyFrame{Connection: &hubbyrpc.ConnectionStatus{Connected: true}})

	deadline := time.Now().Add(5 * time.Second)
	for !c.Connected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, c.SessionUp())
	require.True(t, c.Connected())

	require.NoError(t, c.Stop(context.Background()))

	assert.False(t, c.SessionUp())
	assert.False(t, c.Connected())
	assert.True(t, errors.Is(c.SetAttributeBool(1, true), StatusUnavailable))

	// A deliberate stop is not an IPC loss.
	select {
	case <-ipcLost:
		t.Fatal("ipc disconnected handler fired on deliberate stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClientReconnectsAfterHubbyExit(t *testing.T) {
	fake, cfg := startFakeHubby(t)
	c := startClient(t, cfg)

	ipcLost := make(chan struct{}, 2)
	c.SetIPCDisconnectedHandler(func() { ipcLost <- struct{}{} })

	first := waitSession(t, fake)
	first.close()

	select {
	case <-ipcLost:
	case <-time.After(5 * time.Second):
		t.Fatal("ipc disconnected handler not called")
	}

	second := waitSession(t, fake)
	require.NotNil(t, second.hello)
	assert.Equal(t, "test-hub", second.hello.DeviceId)

	deadline := time.Now().Add(5 * time.Second)
	for !c.SessionUp() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, c.SessionUp())
}
