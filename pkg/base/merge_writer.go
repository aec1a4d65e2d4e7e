// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"net"
)

// MergeWriter 合并多个内存块，内存块个数达到阈值后一次性将内存块数组返回给上层
//
// 用于实现 cork/uncork 语义：cork期间写入的内存块被缓存，uncork(Flush)或者达到阈值时统一回调
//
// 注意，输入时的单个内存块，回调时不会出现拆分切割的情况
// 注意，非协程安全，由调用方加锁
type MergeWriter struct {
	onWritev OnWritev
	maxCount int

	currSize int
	bs       net.Buffers
}

type OnWritev func(bs net.Buffers)

// NewMergeWriter
//
// @param onWritev 回调缓存的1~n个内存块
// @param maxCount 回调阈值，缓存的内存块个数
func NewMergeWriter(onWritev OnWritev, maxCount int) *MergeWriter {
	return &MergeWriter{
		onWritev: onWritev,
		maxCount: maxCount,
	}
}

// Write
//
// 注意，函数调用结束后，`b`内存块会被内部持有
//
// @return 本次写入是否触发了回调
func (w *MergeWriter) Write(b []byte) bool {
	w.bs = append(w.bs, b)
	w.currSize += len(b)
	if len(w.bs) >= w.maxCount {
		w.flush()
		return true
	}
	return false
}

// Flush 强制将内部缓冲的数据全部回调排空
func (w *MergeWriter) Flush() {
	if len(w.bs) > 0 {
		w.flush()
	}
}

// Count 当前缓存的内存块个数
func (w *MergeWriter) Count() int {
	return len(w.bs)
}

// Reset 丢弃缓存的数据，不回调
func (w *MergeWriter) Reset() {
	w.currSize = 0
	w.bs = nil
}

func (w *MergeWriter) flush() {
	Log.Tracef("[%p] MergeWriter::flush. count=%d, len=%d", w, len(w.bs), w.currSize)
	bs := w.bs
	w.currSize = 0
	w.bs = nil
	w.onWritev(bs)
}
