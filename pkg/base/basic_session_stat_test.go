// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/naza/pkg/connection"
)

type mockStatable struct {
	stat connection.Stat
}

func (m *mockStatable) GetStat() connection.Stat {
	return m.stat
}

func TestBasicSessionStat(t *testing.T) {
	s := NewBasicSessionStat("RTMPPUBSUB1", "127.0.0.1:12345")
	assert.Equal(t, "RTMPPUBSUB1", s.UniqueKey())
	assert.Equal(t, SessionBaseTypePubSubStr, s.BaseType())

	conn := &mockStatable{}
	readAlive, writeAlive := s.IsAliveWitchConn(conn)
	assert.Equal(t, true, readAlive)
	assert.Equal(t, true, writeAlive)

	conn.stat.ReadBytesSum = 1024 * 1024
	readAlive, writeAlive = s.IsAliveWitchConn(conn)
	assert.Equal(t, true, readAlive)
	assert.Equal(t, false, writeAlive)

	s.SetBaseType(SessionBaseTypePubStr)
	s.UpdateStatWitchConn(conn, 8)
	stat := s.GetStatWithConn(conn)
	assert.Equal(t, 1024, stat.BitrateKbits)
	assert.Equal(t, uint64(1024*1024), stat.ReadBytesSum)
	assert.Equal(t, "127.0.0.1:12345", stat.RemoteAddr)
	assert.Equal(t, SessionProtocolRtmpStr, stat.Protocol)

	// 周期内没有新数据
	s.UpdateStatWitchConn(conn, 8)
	assert.Equal(t, 0, s.GetStatWithConn(conn).BitrateKbits)
}
