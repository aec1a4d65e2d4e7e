// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

// spec-video_file_format_spec_v10.pdf
// onMetaData
// - duration        DOUBLE, seconds
// - width           DOUBLE
// - height          DOUBLE
// - videodatarate   DOUBLE
// - framerate       DOUBLE
// - videocodecid    DOUBLE
// - audiosamplerate DOUBLE
// - audiosamplesize DOUBLE
// - stereo          BOOL
// - audiocodecid    DOUBLE
// - filesize        DOUBLE, bytes

const (
	metadataSetDataFrame = "@setDataFrame"
	metadataOnMetaData   = "onMetaData"
)

// MetadataInfo 从metadata中读取的字段，字段不存在时为0值
type MetadataInfo struct {
	AudioSampleRate int
	Channels        int // stereo为true时为2，false时为1，字段不存在时为0
	Width           int
	Height          int
	FrameRate       float64
}

// ParseMetadata 读取metadata中的object或ecma array，兼容带有`@setDataFrame`前缀以及不带前缀的格式
func ParseMetadata(data Amf0Data) ObjectPairArray {
	for _, v := range data.Values {
		switch o := v.(type) {
		case ObjectPairArray:
			return o
		case EcmaArray:
			return ObjectPairArray(o)
		}
	}
	return nil
}

// BuildMetadataFromSetDataFrame 将推流端发送的`@setDataFrame`重新编码成`onMetaData`，用于缓存并转发给播放端
//
// 原始的object或ecma array保持原样
//
// @return payload: 新申请的独立内存块
func BuildMetadataFromSetDataFrame(data Amf0Data) (payload []byte, info MetadataInfo, err error) {
	out := Amf0Data{Name: metadataOnMetaData}
	for _, v := range data.Values {
		switch v.(type) {
		case ObjectPairArray, EcmaArray:
			out.Values = append(out.Values, v)
		}
		if len(out.Values) != 0 {
			break
		}
	}

	opa := ParseMetadata(data)
	if v, err := opa.FindNumber("audiosamplerate"); err == nil {
		info.AudioSampleRate = int(v)
	}
	if v, err := opa.FindBool("stereo"); err == nil {
		if v {
			info.Channels = 2
		} else {
			info.Channels = 1
		}
	}
	if v, err := opa.FindNumber("width"); err == nil {
		info.Width = int(v)
	}
	if v, err := opa.FindNumber("height"); err == nil {
		info.Height = int(v)
	}
	if v, err := opa.FindNumber("framerate"); err == nil {
		info.FrameRate = v
	}

	payload, err = out.Encode()
	return
}
