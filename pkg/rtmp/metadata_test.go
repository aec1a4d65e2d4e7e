// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"testing"

	"github.com/q191201771/naza/pkg/assert"
)

func TestBuildMetadataFromSetDataFrame(t *testing.T) {
	ecma := EcmaArray{
		{"duration", float64(0)},
		{"width", float64(1280)},
		{"height", float64(720)},
		{"framerate", float64(30)},
		{"audiosamplerate", float64(44100)},
		{"stereo", true},
		{"encoder", "Lavf58.29.100"},
	}
	in := Amf0Data{
		Name:   "@setDataFrame",
		Values: []interface{}{"onMetaData", ecma},
	}
	b, err := in.Encode()
	assert.Equal(t, nil, err)
	data, err := DecodeAmf0Data(b)
	assert.Equal(t, nil, err)

	payload, info, err := BuildMetadataFromSetDataFrame(data)
	assert.Equal(t, nil, err)
	assert.Equal(t, MetadataInfo{AudioSampleRate: 44100, Channels: 2, Width: 1280, Height: 720, FrameRate: 30}, info)

	out, err := DecodeAmf0Data(payload)
	assert.Equal(t, nil, err)
	assert.Equal(t, "onMetaData", out.Name)
	assert.Equal(t, []interface{}{ecma}, out.Values)

	opa := ParseMetadata(out)
	assert.Equal(t, float64(1280), opa.Find("width"))
}

func TestBuildMetadataFromSetDataFrame_Corner(t *testing.T) {
	// 没有object
	payload, info, err := BuildMetadataFromSetDataFrame(Amf0Data{Name: "@setDataFrame", Values: []interface{}{"onMetaData"}})
	assert.Equal(t, nil, err)
	assert.Equal(t, MetadataInfo{}, info)
	out, err := DecodeAmf0Data(payload)
	assert.Equal(t, nil, err)
	assert.Equal(t, "onMetaData", out.Name)
	assert.Equal(t, 0, len(out.Values))

	// object类型，stereo为false，字段类型不对的忽略
	obj := ObjectPairArray{{"stereo", false}, {"width", "1280"}}
	_, info, err = BuildMetadataFromSetDataFrame(Amf0Data{Name: "@setDataFrame", Values: []interface{}{obj}})
	assert.Equal(t, nil, err)
	assert.Equal(t, MetadataInfo{Channels: 1}, info)

	assert.Equal(t, 0, len(ParseMetadata(Amf0Data{})))
}
