package protocol

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/qconn/internal/promise"
)

func TestConnection_WireFormat(t *testing.T) {
	mt := newMockTransport()
	c := NewConnection(testLogger(), mt, nil, Config{IDs: NewFixedGenerator("id")})
	require.NoError(t, c.Start(context.Background()))

	defer c.Close(nil)

	greet := promise.Func(func(context.Context, ...any) (any, error) {
		return "hi", nil
	})

	answer := c.Remote().Call(context.Background(), "greet",
		"world", math.Inf(1), greet, map[string]any{"a/b": 1})

	mt.waitSent(t, 1)

	// The peer answers the call and invokes the exported function.
	mt.deliver(`{"type":"resolve","to":"id1","resolution":42}`)
	mt.deliver(`{"type":"send","to":"id2","from":"peer1","op":"apply","args":[null,[]]}`)

	v, err := await(t, answer)
	require.NoError(t, err)
	require.Equal(t, 42.0, v)

	mt.waitSent(t, 2)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	var out bytes.Buffer
	for _, frame := range mt.sentFrames() {
		out.Write(frame)
		out.WriteByte('\n')
	}

	g.Assert(t, "send_and_reply", out.Bytes())
}
