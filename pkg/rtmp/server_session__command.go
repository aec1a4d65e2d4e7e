// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/nazabytes"
)

const (
	cmdConnect         = "connect"
	cmdReleaseStream   = "releaseStream"
	cmdFcPublish       = "FCPublish"
	cmdFcUnpublish     = "FCUnpublish"
	cmdGetStreamLength = "getStreamLength"
	cmdCreateStream    = "createStream"
	cmdPublish         = "publish"
	cmdPlay            = "play"
	cmdPause           = "pause"
	cmdDeleteStream    = "deleteStream"
	cmdCloseStream     = "closeStream"
	cmdReceiveAudio    = "receiveAudio"
	cmdReceiveVideo    = "receiveVideo"
)

func (s *ServerSession) doCommandMessage(msg base.RtmpMsg, payload []byte) error {
	cmd, err := DecodeAmf0Command(payload)
	if err != nil {
		Log.Errorf("[%s] decode command message failed. err=%+v, data=%s",
			s.uniqueKey, err, hex.Dump(nazabytes.Prefix(payload, 64)))
		return err
	}

	streamId := msg.Header.MsgStreamId
	switch cmd.Name {
	case cmdConnect:
		return s.doConnect(&cmd)
	case cmdReleaseStream, cmdFcPublish, cmdFcUnpublish, cmdGetStreamLength:
		Log.Debugf("[%s] -----> %s(), ignore.", s.uniqueKey, cmd.Name)
	case cmdCreateStream:
		return s.doCreateStream(&cmd)
	case cmdPublish:
		return s.doPublish(streamId, &cmd)
	case cmdPlay:
		return s.doPlay(streamId, &cmd)
	case cmdPause:
		s.doPause(&cmd)
	case cmdDeleteStream:
		id, err := cmd.ArgNumber(0)
		if err != nil {
			Log.Warnf("[%s] -----> deleteStream() without stream id. err=%+v", s.uniqueKey, err)
			return nil
		}
		Log.Infof("[%s] -----> deleteStream(%d)", s.uniqueKey, int(id))
		s.deletePlayStream(int(id), false)
		s.deletePublishStream(int(id), false)
	case cmdCloseStream:
		Log.Infof("[%s] -----> closeStream(%d)", s.uniqueKey, streamId)
		s.deletePlayStream(streamId, false)
		s.deletePublishStream(streamId, false)
	case cmdReceiveAudio, cmdReceiveVideo:
		v, err := cmd.ArgBool(0)
		if err != nil {
			Log.Warnf("[%s] -----> %s() without bool arg. err=%+v", s.uniqueKey, cmd.Name, err)
			return nil
		}
		Log.Infof("[%s] -----> %s(%t)", s.uniqueKey, cmd.Name, v)
		if cmd.Name == cmdReceiveAudio {
			s.receiveAudio.Store(v)
		} else {
			s.receiveVideo.Store(v)
		}
	default:
		Log.Debugf("[%s] read unknown command message. cmd=%s", s.uniqueKey, cmd.Name)
	}
	return nil
}

func (s *ServerSession) doConnect(cmd *Amf0Command) error {
	opa := cmd.ObjectPairs()
	app, _ := opa.FindString("app")
	app = strings.Replace(app, "/", "", 1)
	objectEncoding, err := opa.FindNumber("objectEncoding")
	if err != nil {
		objectEncoding = 0
	}
	Log.Infof("[%s] -----> connect('%s'). tid=%v, objectEncoding=%v", s.uniqueKey, app, cmd.TransactionId, objectEncoding)

	s.mu.Lock()
	if !s.connectTime.IsZero() {
		s.mu.Unlock()
		Log.Warnf("[%s] duplicated connect, ignore.", s.uniqueKey)
		return nil
	}
	s.app = app
	s.connectInfo = opa
	s.mu.Unlock()

	if err := s.emit(EventPreConnect, streamDescriptor{}); err != nil {
		Log.Warnf("[%s] connect rejected by observer. err=%+v", s.uniqueKey, err)
		return base.NewErrRtmpRejected(NetConnectionConnectRejected, err)
	}
	if !s.isStarting.Load() {
		return base.ErrDisposed
	}

	s.objectEncoding = objectEncoding
	s.mu.Lock()
	s.connectTime = time.Now()
	s.mu.Unlock()
	s.startPing()

	chunkSize := s.server.option.ChunkSize
	Log.Infof("[%s] <----- Window Acknowledgement Size %d", s.uniqueKey, windowAcknowledgementSize)
	if err := s.packer.WriteWinAckSize(s, windowAcknowledgementSize); err != nil {
		return err
	}
	Log.Infof("[%s] <----- Set Peer Bandwidth", s.uniqueKey)
	if err := s.packer.WritePeerBandwidth(s, peerBandwidth, peerBandwidthLimitTypeDynamic); err != nil {
		return err
	}
	Log.Infof("[%s] <----- SetChunkSize %d", s.uniqueKey, chunkSize)
	if err := s.packer.WriteChunkSize(s, chunkSize); err != nil {
		return err
	}
	s.packer.SetChunkSize(chunkSize)
	Log.Infof("[%s] <----- _result(\"NetConnection.Connect.Success\")", s.uniqueKey)
	if err := s.packer.WriteConnectResult(s, cmd.TransactionId, objectEncoding); err != nil {
		return err
	}

	_ = s.emit(EventPostConnect, streamDescriptor{})
	return nil
}

func (s *ServerSession) doCreateStream(cmd *Amf0Command) error {
	s.streams++
	Log.Infof("[%s] -----> createStream(). tid=%v", s.uniqueKey, cmd.TransactionId)
	Log.Infof("[%s] <----- _result(). streamId=%d", s.uniqueKey, s.streams)
	return s.packer.WriteCreateStreamResult(s, cmd.TransactionId, s.streams)
}

func (s *ServerSession) newStreamDescriptor(streamId int, raw string) streamDescriptor {
	name, args := parseStreamName(raw)
	return streamDescriptor{
		StreamId:   streamId,
		StreamPath: fmt.Sprintf("/%s/%s", s.appSnapshot(), name),
		StreamName: name,
		Args:       args,
	}
}

// rejectPublish 回复错误状态，返回的error会使session被关闭
func (s *ServerSession) rejectPublish(d streamDescriptor, code, description string, reason error) error {
	Log.Warnf("[%s] publish rejected. path=%s, code=%s, reason=%+v", s.uniqueKey, d.StreamPath, code, reason)
	s.writeOnStatus(d.StreamId, StatusLevelError, code, description)
	return base.NewErrRtmpRejected(code, reason)
}

func (s *ServerSession) doPublish(streamId int, cmd *Amf0Command) error {
	raw, err := cmd.ArgString(0)
	if err != nil {
		return err
	}
	d := s.newStreamDescriptor(streamId, raw)
	Log.Infof("[%s] -----> publish('%s'). path=%s", s.uniqueKey, raw, d.StreamPath)

	if s.isPublishing.Load() || s.isPlaying.Load() || s.isIdling.Load() {
		return s.rejectPublish(d, NetStreamPublishBadConnection, "Connection already publishing", nil)
	}

	s.mu.Lock()
	s.publish = d
	s.mu.Unlock()

	if err := s.emit(EventPrePublish, d); err != nil {
		return s.rejectPublish(d, NetStreamPublishUnauthorized, "Rejected", err)
	}
	if !s.isStarting.Load() {
		return base.ErrDisposed
	}

	ctx, cancel := s.storeContext()
	defer cancel()

	record, err := s.server.store.Find(ctx, d.StreamName)
	if err != nil {
		if errors.Is(err, base.ErrStreamNotFound) {
			return s.rejectPublish(d, NetStreamPublishBadName, "Not Found", err)
		}
		return s.rejectPublish(d, NetStreamPublishFailed, "Server error", err)
	}
	if s.server.option.AuthPublish && !VerifyToken(d.Args["token"], record.TokenHash) {
		return s.rejectPublish(d, NetStreamPublishUnauthorized, "Unauthorized", base.ErrStreamUnauthorized)
	}
	if record.Status != StreamStatusPending {
		return s.rejectPublish(d, NetStreamPublishBadConnection, "Conflict",
			fmt.Errorf("stream status is %s", record.Status))
	}

	// 先占住路径，保证同一路径只有一个发布者
	if err := s.server.registry.PutPublisher(d.StreamPath, s.Id()); err != nil {
		return s.rejectPublish(d, NetStreamPublishBadConnection, "Conflict", err)
	}
	if err := s.server.store.UpdateStatus(ctx, d.StreamName, StreamStatusPublishing); err != nil {
		s.server.registry.RemovePublisher(d.StreamPath, s.Id())
		return s.rejectPublish(d, NetStreamPublishFailed, "Server error", err)
	}

	s.mu.Lock()
	if !s.isStarting.Load() {
		s.mu.Unlock()
		// 发布过程中被关闭，回滚路径以及store中的状态
		s.server.registry.RemovePublisher(d.StreamPath, s.Id())
		if err := s.server.store.UpdateStatus(ctx, d.StreamName, StreamStatusClosed); err != nil {
			Log.Errorf("[%s] update stream status failed. name=%s, err=%+v", s.uniqueKey, d.StreamName, err)
		}
		return base.ErrDisposed
	}
	s.isPublishing.Store(true)
	s.stat.SetBaseType(base.SessionBaseTypePubStr)
	s.audio = base.StatAudio{}
	s.video = base.StatVideo{}
	s.audioSeqHeader = nil
	s.videoSeqHeader = nil
	s.metadata = nil
	s.clock = 0
	if s.server.option.GopCache {
		s.gopCache = NewGopCache(s.uniqueKey)
	}
	s.mu.Unlock()
	s.fps = newFpsEstimator(time.Duration(fpsEstimateDurationMs) * time.Millisecond)

	s.writeOnStatus(streamId, StatusLevelStatus, NetStreamPublishStart, d.StreamPath+" is now published.")
	s.server.registry.IncAccepted()
	_ = s.emit(EventPostPublish, d)

	for _, player := range s.server.registry.IdlePlayers(d.StreamPath) {
		player.startPlay(s)
	}
	return nil
}

func (s *ServerSession) rejectPlay(d streamDescriptor, code, description string, reason error) error {
	Log.Warnf("[%s] play rejected. path=%s, code=%s, reason=%+v", s.uniqueKey, d.StreamPath, code, reason)
	s.writeOnStatus(d.StreamId, StatusLevelError, code, description)
	return base.NewErrRtmpRejected(code, reason)
}

func (s *ServerSession) doPlay(streamId int, cmd *Amf0Command) error {
	raw, err := cmd.ArgString(0)
	if err != nil {
		return err
	}
	d := s.newStreamDescriptor(streamId, raw)
	Log.Infof("[%s] -----> play('%s'). path=%s", s.uniqueKey, raw, d.StreamPath)

	if err := s.emit(EventPrePlay, d); err != nil {
		return s.rejectPlay(d, NetStreamPlayUnauthorized, "Rejected", err)
	}
	if !s.isStarting.Load() {
		return base.ErrDisposed
	}

	ctx, cancel := s.storeContext()
	record, err := s.server.store.Find(ctx, d.StreamName)
	cancel()
	if err != nil {
		if errors.Is(err, base.ErrStreamNotFound) {
			return s.rejectPlay(d, NetStreamPlayBadName, "Not Found", err)
		}
		return s.rejectPlay(d, NetStreamPlayFailed, "Server error", err)
	}
	if s.server.option.AuthPlay && !s.isLocal && !VerifyToken(d.Args["token"], record.TokenHash) {
		return s.rejectPlay(d, NetStreamPlayUnauthorized, "Unauthorized", base.ErrStreamUnauthorized)
	}

	if s.isPlaying.Load() || s.isIdling.Load() || s.isPublishing.Load() {
		Log.Warnf("[%s] already playing. path=%s", s.uniqueKey, d.StreamPath)
		s.writeOnStatus(streamId, StatusLevelError, NetStreamPlayBadConnection, "Connection has been already playing")
		return nil
	}

	s.mu.Lock()
	s.play = d
	s.stat.SetBaseType(base.SessionBaseTypeSubStr)
	s.mu.Unlock()
	s.playStreamId.Store(uint32(streamId))
	s.isPaused.Store(false)

	if err := s.respondPlay(streamId); err != nil {
		return err
	}
	s.relay.ModWriteChanSize(wChanSize)

	s.mu.Lock()
	if s.play.StreamPath == d.StreamPath && s.isStarting.Load() {
		s.isIdling.Store(true)
	}
	s.mu.Unlock()

	publisher := s.server.registry.GetPublisher(d.StreamPath)
	if publisher == nil || publisher == s {
		Log.Infof("[%s] no publisher yet, idle. path=%s", s.uniqueKey, d.StreamPath)
		return nil
	}
	s.startPlay(publisher)
	return nil
}

func (s *ServerSession) respondPlay(streamId int) error {
	Log.Infof("[%s] <----- StreamBegin", s.uniqueKey)
	if err := s.packer.WriteStreamBegin(s, streamId); err != nil {
		return err
	}
	s.writeOnStatus(streamId, StatusLevelStatus, NetStreamPlayReset, "Playing and resetting stream.")
	s.writeOnStatus(streamId, StatusLevelStatus, NetStreamPlayStart, "Started playing stream.")
	Log.Infof("[%s] <----- |RtmpSampleAccess", s.uniqueKey)
	return s.packer.WriteSampleAccess(s, streamId)
}

func (s *ServerSession) doPause(cmd *Amf0Command) {
	pause, err := cmd.ArgBool(0)
	if err != nil {
		Log.Warnf("[%s] -----> pause() without bool arg. err=%+v", s.uniqueKey, err)
		return
	}
	s.mu.Lock()
	d := s.play
	s.mu.Unlock()
	Log.Infof("[%s] -----> pause(%t). path=%s", s.uniqueKey, pause, d.StreamPath)
	if d.StreamPath == "" {
		return
	}

	s.isPaused.Store(pause)
	if pause {
		Log.Infof("[%s] <----- StreamEOF", s.uniqueKey)
		_ = s.packer.WriteStreamEof(s, d.StreamId)
		s.writeOnStatus(d.StreamId, StatusLevelStatus, NetStreamPauseNotify, "Paused live")
		return
	}

	Log.Infof("[%s] <----- StreamBegin", s.uniqueKey)
	_ = s.packer.WriteStreamBegin(s, d.StreamId)
	if publisher := s.server.registry.GetPublisher(d.StreamPath); publisher != nil && publisher != s {
		audio, video, clock := publisher.seqHeaders()
		if audio != nil {
			_ = s.relay.WriteDirect(s.packMedia(csidAudio, base.RtmpTypeIdAudio, audio, clock, d.StreamId))
		}
		if video != nil {
			_ = s.relay.WriteDirect(s.packMedia(csidVideo, base.RtmpTypeIdVideo, video, clock, d.StreamId))
		}
	}
	s.writeOnStatus(d.StreamId, StatusLevelStatus, NetStreamUnpauseNotify, "Unpaused live")
}

// deletePlayStream 结束播放
//
// @param force: 为true时忽略`streamId`，结束当前的播放
func (s *ServerSession) deletePlayStream(streamId int, force bool) {
	s.mu.Lock()
	d := s.play
	if d.StreamPath == "" || (!force && d.StreamId != streamId) {
		s.mu.Unlock()
		return
	}
	wasIdling := s.isIdling.Load()
	wasPlaying := s.isPlaying.Load()
	s.isIdling.Store(false)
	s.isPlaying.Store(false)
	s.isPaused.Store(false)
	s.play = streamDescriptor{}
	s.playGen++
	s.mu.Unlock()
	s.playStreamId.Store(0)

	Log.Infof("[%s] delete play stream. path=%s, idling=%t, playing=%t", s.uniqueKey, d.StreamPath, wasIdling, wasPlaying)
	if !wasIdling {
		if publisher := s.server.registry.GetPublisher(d.StreamPath); publisher != nil {
			publisher.removePlayer(s.Id())
		}
		if wasPlaying {
			_ = s.emit(EventDonePlay, d)
		}
	}
	if s.isStarting.Load() {
		s.writeOnStatus(d.StreamId, StatusLevelStatus, NetStreamPlayStop, "Stopped playing stream.")
	}
}

// deletePublishStream 结束发布，通知所有播放者
//
// @param force: 为true时忽略`streamId`，结束当前的发布
func (s *ServerSession) deletePublishStream(streamId int, force bool) {
	s.mu.Lock()
	d := s.publish
	if d.StreamPath == "" || (!force && d.StreamId != streamId) {
		s.mu.Unlock()
		return
	}
	wasPublishing := s.isPublishing.Load()
	s.isPublishing.Store(false)
	s.publish = streamDescriptor{}
	players := s.playerIdsLocked()
	s.players = make(map[string]struct{})
	if s.gopCache != nil {
		s.gopCache.Clear()
	}
	s.mu.Unlock()

	if !wasPublishing {
		return
	}
	Log.Infof("[%s] delete publish stream. path=%s, players=%d", s.uniqueKey, d.StreamPath, len(players))

	s.server.registry.RemovePublisher(d.StreamPath, s.Id())
	_ = s.emit(EventDonePublish, d)
	if s.isStarting.Load() {
		s.writeOnStatus(d.StreamId, StatusLevelStatus, NetStreamUnpublishSuccess, "Stream is unpublished")
	}
	for _, player := range s.server.registry.GetSessions(players) {
		player.onUnpublish(d.StreamPath)
	}

	ctx, cancel := s.storeContext()
	defer cancel()
	if err := s.server.store.UpdateStatus(ctx, d.StreamName, StreamStatusClosed); err != nil {
		Log.Warnf("[%s] update stream status failed. name=%s, err=%+v", s.uniqueKey, d.StreamName, err)
	}
}
