// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"fmt"
	"time"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/bele"
)

// https://pengrl.com/p/20027
//
// 只支持简单握手：S0=版本号，S1=时间戳+4字节0+随机数，S2=C1原样返回

const version = uint8(3)

const (
	handshakePayloadLen = 1536
	s0s1s2Len           = 1 + handshakePayloadLen*2
)

type HandshakeState uint8

const (
	HandshakeStateUninitialized HandshakeState = iota // 等待C0
	HandshakeStateVersionSent                         // 已收到C0，等待C1
	HandshakeStateAckSent                             // 已回复S0S1S2，等待C2
	HandshakeStateDone
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakeStateUninitialized:
		return "Uninitialized"
	case HandshakeStateVersionSent:
		return "VersionSent"
	case HandshakeStateAckSent:
		return "AckSent"
	case HandshakeStateDone:
		return "Done"
	}
	return fmt.Sprintf("HandshakeState(%d)", uint8(s))
}

var random1528Buf []byte

// HandshakeServer
//
// 增量式的服务端握手，可以按任意字节边界喂入数据
type HandshakeServer struct {
	state   HandshakeState
	payload []byte // C1或C2，累积中
	n       int
}

func (s *HandshakeServer) State() HandshakeState {
	return s.state
}

func (s *HandshakeServer) IsDone() bool {
	return s.state == HandshakeStateDone
}

// Feed
//
// @return n:      从`b`中消费的字节数。握手完成后，`b[n:]`为chunk数据
// @return s0s1s2: 不为nil时，需要发送给对端
func (s *HandshakeServer) Feed(b []byte) (n int, s0s1s2 []byte, err error) {
	for n < len(b) && s.state != HandshakeStateDone {
		switch s.state {
		case HandshakeStateUninitialized:
			if b[n] != version {
				return n, nil, fmt.Errorf("%w. version=%d", base.ErrRtmpHandshakeVersion, b[n])
			}
			n++
			s.payload = make([]byte, handshakePayloadLen)
			s.n = 0
			s.state = HandshakeStateVersionSent
		case HandshakeStateVersionSent:
			n += s.fill(b[n:])
			if s.n == handshakePayloadLen {
				s0s1s2 = makeS0S1S2(s.payload)
				s.n = 0
				s.state = HandshakeStateAckSent
			}
		case HandshakeStateAckSent:
			n += s.fill(b[n:])
			if s.n == handshakePayloadLen {
				s.payload = nil
				s.n = 0
				s.state = HandshakeStateDone
			}
		}
	}
	return n, s0s1s2, nil
}

func (s *HandshakeServer) fill(b []byte) int {
	m := copy(s.payload[s.n:], b)
	s.n += m
	return m
}

func makeS0S1S2(c1 []byte) []byte {
	out := make([]byte, s0s1s2Len)
	out[0] = version

	s1 := out[1 : 1+handshakePayloadLen]
	bele.BePutUint32(s1, uint32(time.Now().UnixNano()/int64(time.Millisecond)))
	bele.BePutUint32(s1[4:], 0)
	random1528(s1[8:])

	copy(out[1+handshakePayloadLen:], c1)
	return out
}

func random1528(out []byte) {
	copy(out, random1528Buf)
}

func init() {
	random1528Buf = make([]byte, 1528)
	hack := []byte(fmt.Sprintf("random buf of rtmp handshake gen by %s", base.LalRtmpHandshakeWaterMark))
	for i := 0; i < 1528; i += len(hack) {
		copy(random1528Buf[i:], hack)
	}
}
