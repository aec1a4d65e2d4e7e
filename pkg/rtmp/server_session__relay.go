// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"time"

	"github.com/q191201771/lalrelay/pkg/base"
)

// 转发时按该stream id切片，播放者的stream id不同时再拷贝修改
const relayStreamId = 1

func (s *ServerSession) onAudio(msg base.RtmpMsg) {
	if !s.isPublishing.Load() {
		Log.Debugf("[%s] audio message while not publishing, ignore.", s.uniqueKey)
		return
	}
	if len(msg.Payload) == 0 {
		return
	}

	s.mu.Lock()
	if updateAudioInfo(&s.audio, msg.Payload) {
		s.audioSeqHeader = clonePayload(msg.Payload)
		Log.Infof("[%s] cache audio seq header. codec=%s, samplerate=%d, channels=%d",
			s.uniqueKey, s.audio.CodecName, s.audio.SampleRate, s.audio.Channels)
	}
	s.clock = msg.Header.TimestampAbs
	s.mu.Unlock()

	s.relayMedia(msg, csidAudio)
}

func (s *ServerSession) onVideo(msg base.RtmpMsg) {
	if !s.isPublishing.Load() {
		Log.Debugf("[%s] video message while not publishing, ignore.", s.uniqueKey)
		return
	}
	if len(msg.Payload) == 0 {
		return
	}
	if msg.IsEnhanced() {
		payload, ok := remapEnhancedVideo(msg.Payload)
		if !ok {
			return
		}
		msg.Payload = payload
		msg.Header.MsgLen = uint32(len(payload))
	}

	fps := s.fps.Feed(time.Now())

	s.mu.Lock()
	if fps > 0 {
		s.video.Fps = fps
	}
	if s.video.Codec == 0 {
		s.video.Codec = msg.VideoCodecId()
		s.video.CodecName = videoCodecName[s.video.Codec]
	}
	if msg.IsVideoKeySeqHeader() {
		s.videoSeqHeader = clonePayload(msg.Payload)
		updateVideoInfoFromSeqHeader(&s.video, msg.Payload)
		Log.Infof("[%s] cache video seq header. codec=%s, width=%d, height=%d, profile=%s, level=%v",
			s.uniqueKey, s.video.CodecName, s.video.Width, s.video.Height, s.video.Profile, s.video.Level)
	}
	s.clock = msg.Header.TimestampAbs
	s.mu.Unlock()

	s.relayMedia(msg, csidVideo)
}

// relayMedia 切片一次，缓存进gop，再写给所有播放者
func (s *ServerSession) relayMedia(msg base.RtmpMsg, csid int) {
	header := base.RtmpHeader{
		Csid:         csid,
		MsgLen:       uint32(len(msg.Payload)),
		MsgTypeId:    msg.Header.MsgTypeId,
		MsgStreamId:  relayStreamId,
		TimestampAbs: msg.Header.TimestampAbs,
	}
	s.lcd.Init(msg.Payload, &header, s.server.option.ChunkSize)

	s.mu.Lock()
	if s.gopCache != nil {
		s.gopCache.Feed(msg, s.lcd.Get)
	}
	ids := s.playerIdsLocked()
	s.mu.Unlock()

	if len(ids) == 0 {
		return
	}
	s.patcher.Init(s.lcd.Get())
	for _, player := range s.server.registry.GetSessions(ids) {
		player.writeRelay(msg.Header.MsgTypeId, &s.patcher)
	}
}

func (s *ServerSession) onDataMessage(msg base.RtmpMsg, payload []byte) {
	data, err := DecodeAmf0Data(payload)
	if err != nil {
		Log.Warnf("[%s] decode data message failed. err=%+v", s.uniqueKey, err)
		return
	}
	if data.Name != metadataSetDataFrame {
		Log.Debugf("[%s] -----> data message, ignore. name=%s", s.uniqueKey, data.Name)
		return
	}
	if !s.isPublishing.Load() {
		Log.Warnf("[%s] @setDataFrame while not publishing, ignore.", s.uniqueKey)
		return
	}

	metadata, info, err := BuildMetadataFromSetDataFrame(data)
	if err != nil {
		Log.Warnf("[%s] build metadata failed. err=%+v", s.uniqueKey, err)
		return
	}
	Log.Infof("[%s] -----> @setDataFrame. info=%+v", s.uniqueKey, info)

	s.mu.Lock()
	s.metadata = metadata
	if info.AudioSampleRate != 0 {
		s.audio.SampleRate = info.AudioSampleRate
	}
	if info.Channels != 0 {
		s.audio.Channels = info.Channels
	}
	if info.Width != 0 {
		s.video.Width = info.Width
	}
	if info.Height != 0 {
		s.video.Height = info.Height
	}
	if info.FrameRate != 0 {
		s.video.Fps = info.FrameRate
	}
	ids := s.playerIdsLocked()
	s.mu.Unlock()

	if len(ids) == 0 {
		return
	}
	s.patcher.Init(s.packMedia(csidData, base.RtmpTypeIdMetadata, metadata, 0, relayStreamId))
	for _, player := range s.server.registry.GetSessions(ids) {
		player.writeRelay(base.RtmpTypeIdMetadata, &s.patcher)
	}
}

// ----- 播放者相关，可能在发布者的协程中调用 -------------------------------------------------------------------------------------------

// writeRelay 在发布者的协程中调用，检查播放者是否可以接收该类型的数据
func (s *ServerSession) writeRelay(typeId uint8, patcher *streamIdPatcher) {
	if !s.isStarting.Load() || !s.isPlaying.Load() || s.isPaused.Load() {
		return
	}
	switch typeId {
	case base.RtmpTypeIdAudio:
		if !s.receiveAudio.Load() {
			return
		}
	case base.RtmpTypeIdVideo:
		if !s.receiveVideo.Load() {
			return
		}
	}
	_ = s.relay.Write(patcher.Get(int(s.playStreamId.Load())))
}

// startPlay 加入发布者，发送缓存的metadata，sequence header以及gop
//
// 播放者自己的协程（play信令）和发布者的协程（开始发布时唤醒等待的播放者）都可能调用，
// 通过idling标志保证只有一个调用者生效
func (s *ServerSession) startPlay(publisher *ServerSession) {
	s.mu.Lock()
	if !s.isStarting.Load() || !s.isIdling.Load() {
		s.mu.Unlock()
		return
	}
	s.isIdling.Store(false)
	d := s.play
	gen := s.playGen
	s.mu.Unlock()

	if !publisher.addPlayer(s, d.StreamId) {
		// 发布者已经结束，继续等待
		s.mu.Lock()
		if s.playGen == gen && s.isStarting.Load() {
			s.isIdling.Store(true)
		}
		s.mu.Unlock()
		Log.Infof("[%s] publisher gone, idle. path=%s", s.uniqueKey, d.StreamPath)
		return
	}

	s.mu.Lock()
	ok := s.playGen == gen && s.isStarting.Load() && s.isPlaying.Load()
	if !ok && s.playGen != gen {
		s.isPlaying.Store(false)
	}
	s.mu.Unlock()
	if !ok {
		publisher.removePlayer(s.Id())
		return
	}

	s.relay.Flush()
	Log.Infof("[%s] start play. path=%s, publisher=%s", s.uniqueKey, d.StreamPath, publisher.UniqueKey())
	s.server.registry.IncAccepted()
	_ = s.emit(EventPostPlay, d)
}

// addPlayer 在发布者的锁内加入播放者并写入缓存，保证缓存数据先于之后转发的数据写入
//
// @return 发布者已经不在发布状态时返回false
func (s *ServerSession) addPlayer(player *ServerSession, streamId int) bool {
	chunkSize := s.server.option.ChunkSize

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isPublishing.Load() {
		return false
	}
	s.players[player.id] = struct{}{}

	if s.metadata != nil {
		_ = player.relay.Write(s.packMediaWithChunkSize(csidData, base.RtmpTypeIdMetadata, s.metadata, 0, streamId, chunkSize))
	}
	if s.audioSeqHeader != nil {
		_ = player.relay.Write(s.packMediaWithChunkSize(csidAudio, base.RtmpTypeIdAudio, s.audioSeqHeader, 0, streamId, chunkSize))
	}
	if s.videoSeqHeader != nil {
		_ = player.relay.Write(s.packMediaWithChunkSize(csidVideo, base.RtmpTypeIdVideo, s.videoSeqHeader, 0, streamId, chunkSize))
	}
	if s.gopCache != nil {
		var patcher streamIdPatcher
		for _, chunks := range s.gopCache.Data() {
			patcher.Init(chunks)
			_ = player.relay.Write(patcher.Get(streamId))
		}
	}
	player.isPlaying.Store(true)
	return true
}

func (s *ServerSession) removePlayer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, id)
}

// onUnpublish 发布者结束，在发布者的协程中调用。每次播放只通知一次，之后进入等待状态
func (s *ServerSession) onUnpublish(streamPath string) {
	s.mu.Lock()
	if !s.isPlaying.Load() || s.play.StreamPath != streamPath {
		s.mu.Unlock()
		return
	}
	s.isPlaying.Store(false)
	s.isIdling.Store(true)
	d := s.play
	s.mu.Unlock()

	if s.isStarting.Load() {
		Log.Infof("[%s] <----- onStatus('%s')", s.uniqueKey, NetStreamPlayUnpublishNotify)
		_ = s.newPacker().WriteOnStatus(s, d.StreamId, StatusLevelStatus, NetStreamPlayUnpublishNotify, "Stream is unpublished.")
	}
	_ = s.emit(EventDonePlay, d)
}

// seqHeaders 当前缓存的sequence header以及最新的时间戳
func (s *ServerSession) seqHeaders() (audio, video []byte, clock uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioSeqHeader, s.videoSeqHeader, s.clock
}

func (s *ServerSession) playerIdsLocked() []string {
	ids := make([]string, 0, len(s.players))
	for id := range s.players {
		ids = append(ids, id)
	}
	return ids
}

func (s *ServerSession) packMedia(csid int, typeId uint8, payload []byte, timestamp uint32, streamId int) []byte {
	return s.packMediaWithChunkSize(csid, typeId, payload, timestamp, streamId, s.server.option.ChunkSize)
}

func (s *ServerSession) packMediaWithChunkSize(csid int, typeId uint8, payload []byte, timestamp uint32, streamId int, chunkSize int) []byte {
	header := base.RtmpHeader{
		Csid:         csid,
		MsgLen:       uint32(len(payload)),
		MsgTypeId:    typeId,
		MsgStreamId:  streamId,
		TimestampAbs: timestamp,
	}
	return Message2Chunks(payload, &header, chunkSize)
}

func clonePayload(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
