// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package aac_test

import (
	"errors"
	"testing"

	"github.com/q191201771/lalrelay/pkg/aac"
	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/assert"
)

func TestAscContext(t *testing.T) {
	// 0x12 0x10: LC, 44100, stereo
	ascCtx, err := aac.NewAscContext([]byte{0x12, 0x10})
	assert.Equal(t, nil, err)
	assert.Equal(t, uint8(2), ascCtx.AudioObjectType)
	assert.Equal(t, uint8(4), ascCtx.SamplingFrequencyIndex)
	assert.Equal(t, uint8(2), ascCtx.ChannelConfiguration)
	freq, err := ascCtx.GetSamplingFrequency()
	assert.Equal(t, nil, err)
	assert.Equal(t, 44100, freq)
	assert.Equal(t, "LC", ascCtx.GetProfileName())

	// 0x11 0x90: LC, 48000, stereo
	ascCtx, err = aac.NewAscContextFromRtmpSeqHeader([]byte{0xaf, 0x00, 0x11, 0x90})
	assert.Equal(t, nil, err)
	freq, _ = ascCtx.GetSamplingFrequency()
	assert.Equal(t, 48000, freq)
	assert.Equal(t, uint8(2), ascCtx.ChannelConfiguration)
}

func TestAscContextCorner(t *testing.T) {
	_, err := aac.NewAscContext([]byte{0x12})
	assert.Equal(t, true, errors.Is(err, base.ErrShortBuffer))

	_, err = aac.NewAscContextFromRtmpSeqHeader([]byte{0xaf, 0x00, 0x12})
	assert.Equal(t, true, errors.Is(err, base.ErrShortBuffer))

	// sampling frequency index 13 is reserved
	ascCtx, err := aac.NewAscContext([]byte{0x16, 0x90})
	assert.Equal(t, nil, err)
	_, err = ascCtx.GetSamplingFrequency()
	assert.Equal(t, true, errors.Is(err, base.ErrSamplingFrequencyIndex))
}
