// Copyright 2023, Chef.  All rights reserved.
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
	"io"
	"net"
	"testing"
	"time"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/naza/pkg/connection"
)

// 从net.Pipe的另一端读取n字节
func readN(t *testing.T, c net.Conn, n int) []byte {
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	b := make([]byte, n)
	_, err := io.ReadFull(c, b)
	assert.Equal(t, nil, err)
	return b
}

func TestRelayWriter(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	conn := connection.New(c1)
	w := newRelayWriter("test", conn)

	// 未达到阈值，下一次调度时uncork
	done := make(chan []byte)
	go func() {
		done <- readN(t, c2, 3)
	}()
	err := w.Write([]byte{1, 2})
	assert.Equal(t, nil, err)
	err = w.Write([]byte{3})
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{1, 2, 3}, <-done)

	// 达到阈值，立即写出
	go func() {
		done <- readN(t, c2, corkMaxCount)
	}()
	expected := &bytes.Buffer{}
	for i := 0; i < corkMaxCount; i++ {
		assert.Equal(t, nil, w.Write([]byte{byte(i)}))
		expected.WriteByte(byte(i))
	}
	assert.Equal(t, expected.Bytes(), <-done)

	// WriteDirect先写出cork缓存
	go func() {
		done <- readN(t, c2, 3)
	}()
	_ = w.Write([]byte{7})
	err = w.WriteDirect([]byte{8, 9})
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{7, 8, 9}, <-done)

	w.Dispose()
	err = w.Write([]byte{1})
	assert.Equal(t, true, errors.Is(err, base.ErrDisposed))
	err = w.WriteDirect([]byte{1})
	assert.Equal(t, true, errors.Is(err, base.ErrDisposed))
	w.Flush()
	w.uncork()
}

func TestRelayWriter_ConnError(t *testing.T) {
	c1, c2 := net.Pipe()
	conn := connection.New(c1)
	_ = c2.Close()
	w := newRelayWriter("test", conn)
	for i := 0; i < corkMaxCount; i++ {
		_ = w.Write([]byte{1})
	}
	assert.IsNotNil(t, w.Write([]byte{1}))
	w.Dispose()
}

func TestRelayWriter_WriteChanFull(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	conn := connection.New(c1)
	w := newRelayWriter("test", conn)
	w.ModWriteChanSize(1)

	// 对端不读，发送channel被写满
	var err error
	for i := 0; i < corkMaxCount*8 && err == nil; i++ {
		err = w.Write([]byte{1})
	}
	assert.IsNotNil(t, err)
	assert.IsNotNil(t, w.Write([]byte{1}))

	// 连接被关闭，对端最终读到EOF
	_ = c2.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	for {
		if _, err = c2.Read(buf); err != nil {
			break
		}
	}
	assert.Equal(t, io.EOF, err)
	w.Dispose()
}

func TestStreamIdPatcher(t *testing.T) {
	h := base.RtmpHeader{Csid: csidVideo, MsgTypeId: base.RtmpTypeIdVideo, MsgStreamId: 1}
	chunks := Message2Chunks([]byte{0x17, 0x01, 0, 0, 0, 0x65}, &h, defaultChunkSize)

	var p streamIdPatcher
	p.Init(chunks)
	b1 := p.Get(1)
	assert.Equal(t, &chunks[0], &b1[0])
	b2 := p.Get(2)
	assert.Equal(t, []byte{2, 0, 0, 0}, b2[8:12])
	assert.Equal(t, chunks[12:], b2[12:])
	// 原始chunk不被修改
	assert.Equal(t, []byte{1, 0, 0, 0}, chunks[8:12])
	b2again := p.Get(2)
	assert.Equal(t, true, &b2[0] == &b2again[0])
	assert.Equal(t, false, &b2[0] == &b1[0])
}
