// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package avc_test

import (
	"errors"
	"testing"

	"github.com/q191201771/lalrelay/pkg/avc"
	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/assert"
)

// baseline, level 3.1, 1280x720
var goldenSps = []byte{0x67, 0x42, 0xc0, 0x1f, 0xda, 0x01, 0x40, 0x16, 0xe4}

var goldenPps = []byte{0x68, 0xce, 0x3c, 0x80}

func goldenSeqHeader() []byte {
	b := []byte{0x17, 0x00, 0x00, 0x00, 0x00, 0x01, 0x42, 0xc0, 0x1f, 0xff, 0xe1, 0x00, byte(len(goldenSps))}
	b = append(b, goldenSps...)
	b = append(b, 0x01, 0x00, byte(len(goldenPps)))
	b = append(b, goldenPps...)
	return b
}

func TestParseSeqHeader(t *testing.T) {
	ctx, err := avc.ParseSeqHeader(goldenSeqHeader())
	assert.Equal(t, nil, err)
	assert.Equal(t, uint8(66), ctx.Profile)
	assert.Equal(t, uint8(31), ctx.Level)
	assert.Equal(t, uint32(1280), ctx.Width)
	assert.Equal(t, uint32(720), ctx.Height)
	assert.Equal(t, "Baseline", avc.ProfileName(ctx.Profile))

	sps, pps, err := avc.ParseSpsPpsFromSeqHeader(goldenSeqHeader())
	assert.Equal(t, nil, err)
	assert.Equal(t, goldenSps, sps)
	assert.Equal(t, goldenPps, pps)
}

func TestParseSeqHeaderCorner(t *testing.T) {
	_, err := avc.ParseSeqHeader([]byte{0x17, 0x00, 0x00})
	assert.Equal(t, true, errors.Is(err, base.ErrShortBuffer))

	// sps长度超出payload
	b := goldenSeqHeader()
	_, err = avc.ParseSeqHeader(b[:15])
	assert.Equal(t, true, errors.Is(err, base.ErrShortBuffer))

	// 没有sps
	_, err = avc.ParseSeqHeader([]byte{0x17, 0x00, 0x00, 0x00, 0x00, 0x01, 0x42, 0xc0, 0x1f, 0xff, 0xe0})
	assert.Equal(t, true, errors.Is(err, base.ErrAvc))
}

func TestRemoveEmulationPrevention(t *testing.T) {
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x00}, avc.RemoveEmulationPrevention([]byte{0x00, 0x00, 0x03, 0x01, 0x00, 0x00, 0x03, 0x00}))
	in := []byte{0x01, 0x02, 0x03}
	assert.Equal(t, in, avc.RemoveEmulationPrevention(in))
}
