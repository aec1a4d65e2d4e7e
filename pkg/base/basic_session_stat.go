// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"github.com/q191201771/naza/pkg/connection"
)

type IStatable interface {
	GetStat() connection.Stat
}

// BasicSessionStat
//
// 包含两部分功能：
// 1. 维护 StatSession 的一些静态信息
// 2. 通过外部的 connection.Connection 计算带宽，判断读写是否活跃
//
// 注意，非协程安全，由调用方加锁
type BasicSessionStat struct {
	stat StatSession

	prevConnStat connection.Stat
	staleStat    *connection.Stat
}

// NewBasicSessionStat
//
// @param remoteAddr: 如果当前未知，填入""空字符串
func NewBasicSessionStat(uniqueKey string, remoteAddr string) BasicSessionStat {
	var s BasicSessionStat
	s.stat.UniqueKey = uniqueKey
	s.stat.StartTime = ReadableNowTime()
	s.stat.RemoteAddr = remoteAddr
	s.stat.BaseType = SessionBaseTypePubSubStr
	s.stat.Protocol = SessionProtocolRtmpStr
	return s
}

func (s *BasicSessionStat) SetBaseType(baseType string) {
	s.stat.BaseType = baseType
}

func (s *BasicSessionStat) SetSessionId(id string) {
	s.stat.SessionId = id
}

// UpdateStatWitchConn 计算 intervalSec 周期内的带宽
func (s *BasicSessionStat) UpdateStatWitchConn(conn IStatable, intervalSec uint32) {
	if intervalSec == 0 {
		return
	}
	currStat := conn.GetStat()
	var diff uint64
	switch s.stat.BaseType {
	case SessionBaseTypePubStr:
		diff = currStat.ReadBytesSum - s.prevConnStat.ReadBytesSum
	case SessionBaseTypeSubStr:
		diff = currStat.WroteBytesSum - s.prevConnStat.WroteBytesSum
	default:
		diff = currStat.ReadBytesSum + currStat.WroteBytesSum - s.prevConnStat.ReadBytesSum - s.prevConnStat.WroteBytesSum
	}
	s.stat.BitrateKbits = int(diff * 8 / 1024 / uint64(intervalSec))
	s.prevConnStat = currStat
}

// GetStatWithConn 注意，返回的是拷贝，只填充了基础字段，由调用方补充业务字段
func (s *BasicSessionStat) GetStatWithConn(conn IStatable) StatSession {
	connStat := conn.GetStat()
	s.stat.ReadBytesSum = connStat.ReadBytesSum
	s.stat.WroteBytesSum = connStat.WroteBytesSum
	return s.stat
}

// IsAliveWitchConn 与上次调用相比，读写字节数是否有增长
func (s *BasicSessionStat) IsAliveWitchConn(conn IStatable) (readAlive, writeAlive bool) {
	currStat := conn.GetStat()
	if s.staleStat == nil {
		s.staleStat = new(connection.Stat)
		*s.staleStat = currStat
		return true, true
	}

	readAlive = currStat.ReadBytesSum != s.staleStat.ReadBytesSum
	writeAlive = currStat.WroteBytesSum != s.staleStat.WroteBytesSum
	*s.staleStat = currStat
	return
}

func (s *BasicSessionStat) BaseType() string {
	return s.stat.BaseType
}

func (s *BasicSessionStat) UniqueKey() string {
	return s.stat.UniqueKey
}
