// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

// t_http_an__.go
//
// http-api和http-notify的共用部分
//

const (
	SessionProtocolRtmpStr = "RTMP"

	SessionBaseTypePubStr    = "PUB"
	SessionBaseTypeSubStr    = "SUB"
	SessionBaseTypePubSubStr = "PUBSUB"
)

type LalInfo struct {
	ServerId      string `json:"server_id"`
	BinInfo       string `json:"bin_info"`
	LalVersion    string `json:"lal_version"`
	ApiVersion    string `json:"api_version"`
	NotifyVersion string `json:"notify_version"`
	StartTime     string `json:"start_time"`
}

// StatAudio 发布者的音频编码信息
type StatAudio struct {
	Codec      uint8  `json:"codec"`
	CodecName  string `json:"codec_name"`
	Profile    string `json:"profile"`
	SampleRate int    `json:"samplerate"`
	Channels   int    `json:"channels"`
}

// StatVideo 发布者的视频编码信息
type StatVideo struct {
	Codec     uint8   `json:"codec"`
	CodecName string  `json:"codec_name"`
	Profile   string  `json:"profile"`
	Level     float64 `json:"level"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Fps       float64 `json:"fps"`
}

// StatStreamDescriptor publish或play信令中携带的流信息
type StatStreamDescriptor struct {
	StreamId   uint32            `json:"stream_id"`
	StreamPath string            `json:"stream_path"`
	Args       map[string]string `json:"args"`
}

// StatSession 某个session某一时刻的只读快照
type StatSession struct {
	SessionId  string `json:"session_id"`
	UniqueKey  string `json:"unique_key"`
	Protocol   string `json:"protocol"`
	BaseType   string `json:"base_type"`
	RemoteAddr string `json:"remote_addr"`
	App        string `json:"app"`

	StartTime   string `json:"start_time"` // 注意，格式见 ReadableNowTime
	ConnectTime string `json:"connect_time"`
	DurationMs  int64  `json:"duration_ms"`

	ReadBytesSum  uint64 `json:"read_bytes_sum"`
	WroteBytesSum uint64 `json:"wrote_bytes_sum"`
	BitrateKbits  int    `json:"bitrate_kbits"`

	IsPublishing bool `json:"is_publishing"`
	IsPlaying    bool `json:"is_playing"`
	IsIdling     bool `json:"is_idling"`

	Publish StatStreamDescriptor `json:"publish"`
	Play    StatStreamDescriptor `json:"play"`

	Audio *StatAudio `json:"audio"`
	Video *StatVideo `json:"video"`
}

// StreamPath 如果session在发布，返回发布的路径，否则返回播放的路径
func (s StatSession) StreamPath() string {
	if s.Publish.StreamPath != "" {
		return s.Publish.StreamPath
	}
	return s.Play.StreamPath
}
