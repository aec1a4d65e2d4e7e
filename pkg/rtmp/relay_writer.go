// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"net"
	"sync"
	"time"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/connection"
)

// relayWriter 播放者的媒体数据发送端
//
// 转发时先cork，合并多次写，达到 corkMaxCount 次或者下一次调度时uncork，一次性写入连接
//
// 写失败（包括异步发送的channel已满）后不再写入，并关闭连接
//
// 可被发布者所在协程，定时器回调以及播放者自身的协程并发调用，内部加锁
type relayWriter struct {
	uniqueKey string
	conn      connection.Connection

	mu            sync.Mutex
	mw            *base.MergeWriter
	disposed      bool
	uncorkPending bool
	err           error
}

func newRelayWriter(uniqueKey string, conn connection.Connection) *relayWriter {
	w := &relayWriter{
		uniqueKey: uniqueKey,
		conn:      conn,
	}
	w.mw = base.NewMergeWriter(w.onWritev, corkMaxCount)
	return w
}

// Write 写入cork缓存
//
// 注意，`b`会被内部持有直到写入连接，调用方不能再修改
func (w *relayWriter) Write(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disposed {
		return base.ErrDisposed
	}
	if w.err != nil {
		return w.err
	}
	if !w.mw.Write(b) && !w.uncorkPending {
		w.uncorkPending = true
		time.AfterFunc(0, w.uncork)
	}
	return w.err
}

// WriteDirect 先将cork缓存写出，再直接写入连接，用于信令等需要保证顺序的数据
func (w *relayWriter) WriteDirect(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disposed {
		return base.ErrDisposed
	}
	w.mw.Flush()
	if w.err != nil {
		return w.err
	}
	_, err := w.conn.Write(b)
	return err
}

// ModWriteChanSize 切换为异步发送，避免慢速的播放者阻塞发布者的协程
func (w *relayWriter) ModWriteChanSize(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disposed {
		return
	}
	w.mw.Flush()
	w.conn.ModWriteChanSize(n)
}

// Flush 立即uncork
func (w *relayWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disposed {
		return
	}
	w.mw.Flush()
}

func (w *relayWriter) Dispose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disposed = true
	w.mw.Reset()
}

func (w *relayWriter) uncork() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.uncorkPending = false
	if w.disposed {
		return
	}
	w.mw.Flush()
}

// onWritev 写失败时关闭连接，播放者的读协程随之退出并销毁session
func (w *relayWriter) onWritev(bs net.Buffers) {
	if _, err := w.conn.Writev(bs); err != nil && w.err == nil {
		Log.Warnf("[%s] relay write failed, close conn. err=%+v", w.uniqueKey, err)
		w.err = err
		go func() {
			_ = w.conn.Close()
		}()
	}
}

// ---------------------------------------------------------------------------------------------------------------------

// streamIdPatcher 为不同stream id的播放者生成对应的chunk
//
// 同一个stream id只拷贝一次，stream id与原chunk相同时不拷贝
type streamIdPatcher struct {
	chunks   []byte
	variants map[int][]byte
}

func (p *streamIdPatcher) Init(chunks []byte) {
	p.chunks = chunks
	p.variants = nil
}

func (p *streamIdPatcher) Get(streamId int) []byte {
	if int(bele.LeUint32(p.chunks[relayStreamIdOffset:])) == streamId {
		return p.chunks
	}
	if b, ok := p.variants[streamId]; ok {
		return b
	}
	b := make([]byte, len(p.chunks))
	copy(b, p.chunks)
	bele.LePutUint32(b[relayStreamIdOffset:], uint32(streamId))
	if p.variants == nil {
		p.variants = make(map[int][]byte)
	}
	p.variants[streamId] = b
	return b
}
