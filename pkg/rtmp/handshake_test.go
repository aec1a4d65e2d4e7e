// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"bytes"
	"errors"
	"testing"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/assert"
)

func makeC0C1C2() (c0c1 []byte, c2 []byte) {
	c0c1 = make([]byte, 1+handshakePayloadLen)
	c0c1[0] = version
	for i := 1; i < len(c0c1); i++ {
		c0c1[i] = byte(i)
	}
	c2 = bytes.Repeat([]byte{0xcc}, handshakePayloadLen)
	return
}

func TestHandshakeServer(t *testing.T) {
	c0c1, c2 := makeC0C1C2()
	chunkData := []byte{0x02, 0x00, 0x00}

	in := append(append(append([]byte{}, c0c1...), c2...), chunkData...)

	var hs HandshakeServer
	assert.Equal(t, HandshakeStateUninitialized, hs.State())
	n, s0s1s2, err := hs.Feed(in)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, hs.IsDone())
	assert.Equal(t, len(c0c1)+len(c2), n)
	assert.Equal(t, chunkData, in[n:])

	assert.Equal(t, s0s1s2Len, len(s0s1s2))
	assert.Equal(t, version, s0s1s2[0])
	assert.Equal(t, []byte{0, 0, 0, 0}, s0s1s2[5:9])
	assert.Equal(t, c0c1[1:], s0s1s2[1+handshakePayloadLen:])
}

// 逐字节喂入，结果与一次性喂入相同
func TestHandshakeServerByteByByte(t *testing.T) {
	c0c1, c2 := makeC0C1C2()
	in := append(append([]byte{}, c0c1...), c2...)

	var hs HandshakeServer
	var s0s1s2 []byte
	for i := range in {
		n, out, err := hs.Feed(in[i : i+1])
		assert.Equal(t, nil, err)
		assert.Equal(t, 1, n)
		if out != nil {
			assert.Equal(t, nil, s0s1s2)
			assert.Equal(t, len(c0c1), i+1)
			assert.Equal(t, HandshakeStateAckSent, hs.State())
			s0s1s2 = out
		}
	}
	assert.Equal(t, true, hs.IsDone())
	assert.Equal(t, c0c1[1:], s0s1s2[1+handshakePayloadLen:])

	// 完成后不再消费
	n, out, err := hs.Feed([]byte{1, 2, 3})
	assert.Equal(t, 0, n)
	assert.Equal(t, nil, out)
	assert.Equal(t, nil, err)
}

func TestHandshakeServerBadVersion(t *testing.T) {
	var hs HandshakeServer
	_, _, err := hs.Feed([]byte{6, 0, 0})
	assert.Equal(t, true, errors.Is(err, base.ErrRtmpHandshakeVersion))
	assert.Equal(t, "Uninitialized", hs.State().String())
}
