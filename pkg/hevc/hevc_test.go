// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package hevc_test

import (
	"errors"
	"testing"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/lalrelay/pkg/hevc"
	"github.com/q191201771/naza/pkg/assert"
)

// main, level 3.1, 1920x1088 裁剪到 1920x1080
var goldenSps = []byte{
	0x42, 0x01, 0x01, 0x01, 0x60, 0x00, 0x00, 0x00, 0x90, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x5d, 0xa0, 0x03, 0xc0, 0x80, 0x11, 0x07, 0xcb,
}

func goldenSeqHeader() []byte {
	b := []byte{
		0x1c, 0x00, 0x00, 0x00, 0x00,
		0x01, 0x01, 0x60, 0x00, 0x00, 0x00, 0x90, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x5d, 0xf0, 0x00, 0xfc, 0xfd, 0xf8, 0xf8, 0x00, 0x00, 0x0f,
		0x02,
		0xa0, 0x00, 0x01, 0x00, 0x02, 0x40, 0x01, // vps，只用于测试跳过
		0xa1, 0x00, 0x01, 0x00, byte(len(goldenSps)),
	}
	return append(b, goldenSps...)
}

func TestParseSeqHeader(t *testing.T) {
	ctx, err := hevc.ParseSeqHeader(goldenSeqHeader())
	assert.Equal(t, nil, err)
	assert.Equal(t, uint8(1), ctx.Profile)
	assert.Equal(t, uint8(93), ctx.Level)
	assert.Equal(t, uint32(1920), ctx.Width)
	assert.Equal(t, uint32(1080), ctx.Height)
	assert.Equal(t, "Main", hevc.ProfileName(ctx.Profile))
}

func TestParseSeqHeaderCorner(t *testing.T) {
	_, err := hevc.ParseSeqHeader([]byte{0x1c, 0x00, 0x00, 0x00, 0x00, 0x01})
	assert.Equal(t, true, errors.Is(err, base.ErrShortBuffer))

	// 只有vps
	b := goldenSeqHeader()[:35]
	b[27] = 1
	_, err = hevc.ParseSeqHeader(b)
	assert.Equal(t, true, errors.Is(err, base.ErrHevc))

	// sps被截断
	b = goldenSeqHeader()
	_, err = hevc.ParseSeqHeader(b[:len(b)-3])
	assert.Equal(t, true, errors.Is(err, base.ErrShortBuffer))
}
