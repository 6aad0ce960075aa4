package hubbyrpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c, "codec must register at package init")
	assert.Equal(t, CodecName, c.Name())
}

func TestFrameRoundTrip(t *testing.T) {
	c := encoding.GetCodec(CodecName)

	in := &EdgeFrame{Set: &SetRequest{
		AttrId:    1024,
		Value:     []byte{0x01, 0x02},
		RequestId: "r-1",
	}}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	out := new(EdgeFrame)
	require.NoError(t, c.Unmarshal(data, out))
	require.NotNil(t, out.Set)
	assert.Equal(t, in.Set.AttrId, out.Set.AttrId)
	assert.Equal(t, in.Set.Value, out.Set.Value)
	assert.Equal(t, in.Set.RequestId, out.Set.RequestId)
	assert.Nil(t, out.Hello)
	assert.Nil(t, out.Get)
	assert.Nil(t, out.SetReply)
}

func TestHubbyFrameUnionStaysSparse(t *testing.T) {
	c := encoding.GetCodec(CodecName)

	data, err := c.Marshal(&HubbyFrame{Connection: &ConnectionStatus{Connected: true}})
	require.NoError(t, err)
	// Unset union members must not appear on the wire.
	assert.NotContains(t, string(data), "set_request")
	assert.NotContains(t, string(data), "notify")

	out := new(HubbyFrame)
	require.NoError(t, c.Unmarshal(data, out))
	require.NotNil(t, out.Connection)
	assert.True(t, out.Connection.Connected)
}
