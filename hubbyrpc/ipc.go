// Package hubbyrpc defines the gRPC session contract between hub firmware
// and the hubby service process.
//
// The contract is intentionally handwritten to avoid protoc in firmware
// builds; frames travel through the JSON codec registered in this package.
package hubbyrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Hello opens a session and identifies the firmware to hubby.
type Hello struct {
	DeviceId   string `json:"device_id"`
	SdkVersion string `json:"sdk_version,omitempty"`
}

// GetRequest asks hubby for the current value of an attribute. The reply
// arrives as a Notify frame carrying the same RequestId.
type GetRequest struct {
	AttrId    uint32 `json:"attr_id"` // 16-bit attribute id
	RequestId string `json:"request_id,omitempty"`
}

// SetRequest carries an attribute write. Edge-originated sets flow
// edge -> hubby; service-originated sets flow hubby -> edge and must be
// answered with a SetReply.
type SetRequest struct {
	AttrId    uint32 `json:"attr_id"`
	Value     []byte `json:"value"`
	RequestId string `json:"request_id,omitempty"`
}

// SetReply is the edge's accept/reject verdict on a service SetRequest.
type SetReply struct {
	RequestId string `json:"request_id"`
	Accepted  bool   `json:"accepted"`
	Message   string `json:"message,omitempty"`
}

// Notify reports an attribute's current value, either because it changed
// or in answer to a GetRequest (RequestId echoes the request).
type Notify struct {
	AttrId    uint32 `json:"attr_id"`
	Value     []byte `json:"value"`
	RequestId string `json:"request_id,omitempty"`
}

// SetResult reports the outcome of an edge-originated SetRequest.
// Status 0 is success; negative values follow the aflib status codes.
type SetResult struct {
	RequestId string `json:"request_id"`
	AttrId    uint32 `json:"attr_id"`
	Status    int32  `json:"status"`
}

// ConnectionStatus reports whether the hub's link to the Afero service is
// up. Hubby sends one on session open and on every transition.
type ConnectionStatus struct {
	Connected bool `json:"connected"`
}

// EdgeFrame is the union of frames the firmware sends. Exactly one field
// is set per frame.
type EdgeFrame struct {
	Hello    *Hello      `json:"hello,omitempty"`
	Get      *GetRequest `json:"get,omitempty"`
	Set      *SetRequest `json:"set,omitempty"`
	SetReply *SetReply   `json:"set_reply,omitempty"`
}

// HubbyFrame is the union of frames hubby sends. Exactly one field is set
// per frame.
type HubbyFrame struct {
	SetRequest *SetRequest       `json:"set_request,omitempty"`
	Notify     *Notify           `json:"notify,omitempty"`
	SetResult  *SetResult        `json:"set_result,omitempty"`
	Connection *ConnectionStatus `json:"connection,omitempty"`
}

const sessionMethod = "/afero.ipc.AttributeService/OpenSession"

var sessionStreamDesc = grpc.StreamDesc{
	StreamName:    "OpenSession",
	ServerStreams: true,
	ClientStreams: true,
}

// AttributeServiceClient is used by hub firmware to talk to hubby.
type AttributeServiceClient interface {
	OpenSession(ctx context.Context, opts ...grpc.CallOption) (AttributeService_OpenSessionClient, error)
}

type attributeServiceClient struct{ cc grpc.ClientConnInterface }

func NewAttributeServiceClient(cc grpc.ClientConnInterface) AttributeServiceClient {
	return &attributeServiceClient{cc}
}

func (c *attributeServiceClient) OpenSession(ctx context.Context, opts ...grpc.CallOption) (AttributeService_OpenSessionClient, error) {
	stream, err := c.cc.NewStream(ctx, &sessionStreamDesc, sessionMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &attributeServiceOpenSessionClient{stream}, nil
}

type AttributeService_OpenSessionClient interface {
	Send(*EdgeFrame) error
	Recv() (*HubbyFrame, error)
	grpc.ClientStream
}

type attributeServiceOpenSessionClient struct{ grpc.ClientStream }

func (x *attributeServiceOpenSessionClient) Send(m *EdgeFrame) error {
	return x.ClientStream.SendMsg(m)
}

func (x *attributeServiceOpenSessionClient) Recv() (*HubbyFrame, error) {
	m := new(HubbyFrame)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// AttributeServiceServer is implemented by hubby (and by test fakes).
type AttributeServiceServer interface {
	OpenSession(AttributeService_OpenSessionServer) error
	mustEmbedUnimplementedAttributeServiceServer()
}

type UnimplementedAttributeServiceServer struct{}

func (UnimplementedAttributeServiceServer) OpenSession(AttributeService_OpenSessionServer) error {
	return status.Errorf(codes.Unimplemented, "method OpenSession not implemented")
}
func (UnimplementedAttributeServiceServer) mustEmbedUnimplementedAttributeServiceServer() {}

type AttributeService_OpenSessionServer interface {
	Send(*HubbyFrame) error
	Recv() (*EdgeFrame, error)
	grpc.ServerStream
}

type attributeServiceOpenSessionServer struct{ grpc.ServerStream }

func (x *attributeServiceOpenSessionServer) Send(m *HubbyFrame) error {
	return x.ServerStream.SendMsg(m)
}

func (x *attributeServiceOpenSessionServer) Recv() (*EdgeFrame, error) {
	m := new(EdgeFrame)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func RegisterAttributeServiceServer(s grpc.ServiceRegistrar, srv AttributeServiceServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "afero.ipc.AttributeService",
		HandlerType: (*AttributeServiceServer)(nil),
		Methods:     []grpc.MethodDesc{},
		Streams: []grpc.StreamDesc{
			{
				StreamName: "OpenSession",
				Handler: func(srvIface any, stream grpc.ServerStream) error {
					return srvIface.(AttributeServiceServer).OpenSession(&attributeServiceOpenSessionServer{stream})
				},
				ServerStreams: true,
				ClientStreams: true,
			},
		},
		Metadata: "afero_ipc.proto",
	}, srv)
}
