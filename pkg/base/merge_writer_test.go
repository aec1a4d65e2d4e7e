// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"bytes"
	"net"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
)

func TestMergeWriter(t *testing.T) {
	goldenBuf1 := bytes.Repeat([]byte{'a'}, 8192)
	goldenBuf2 := bytes.Repeat([]byte{'b'}, 1024)

	var cbBuf net.Buffers
	var cbCount int
	w := NewMergeWriter(func(bs net.Buffers) {
		cbBuf = bs
		cbCount++
	}, 3)

	// 不超过
	assert.Equal(t, false, w.Write(goldenBuf1))
	assert.Equal(t, nil, cbBuf)
	assert.Equal(t, false, w.Write(goldenBuf2))
	assert.Equal(t, 2, w.Count())

	// 达到阈值
	assert.Equal(t, true, w.Write(goldenBuf1[:10]))
	assert.Equal(t, 3, len(cbBuf))
	assert.Equal(t, goldenBuf1, cbBuf[0])
	assert.Equal(t, goldenBuf2, cbBuf[1])
	assert.Equal(t, goldenBuf1[:10], cbBuf[2])
	assert.Equal(t, 0, w.Count())
	cbBuf = nil

	// 不超过，强制刷新
	w.Write(goldenBuf2)
	w.Flush()
	assert.Equal(t, 1, len(cbBuf))
	assert.Equal(t, goldenBuf2, cbBuf[0])
	assert.Equal(t, 2, cbCount)

	// 空时刷新不回调
	w.Flush()
	assert.Equal(t, 2, cbCount)

	// 丢弃
	w.Write(goldenBuf2)
	w.Reset()
	w.Flush()
	assert.Equal(t, 2, cbCount)
}
