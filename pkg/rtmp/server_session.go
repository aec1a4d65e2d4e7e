// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"context"
	"encoding/hex"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/bitrate"
	"github.com/q191201771/naza/pkg/connection"
	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/q191201771/naza/pkg/nazabytes"
)

// streamDescriptor publish或者play信令对应的流
type streamDescriptor struct {
	StreamId   int
	StreamPath string // /app/name
	StreamName string // 不包含query
	Args       map[string]string
}

func (d streamDescriptor) toStat() base.StatStreamDescriptor {
	return base.StatStreamDescriptor{
		StreamId:   uint32(d.StreamId),
		StreamPath: d.StreamPath,
		Args:       d.Args,
	}
}

// ServerSession 一个rtmp连接，可能是推流，也可能是拉流
//
// 读取和信令处理都在RunLoop所在的协程中同步进行。
// 其他协程（发布者的协程，定时器，http api）只通过加锁的方法访问session
type ServerSession struct {
	uniqueKey  string
	id         string // 由 Registry.AddSession 在注册时赋值，之后不再变化
	server     *Server
	conn       connection.Connection
	relay      *relayWriter
	remoteAddr string
	isLocal    bool

	// 以下字段只在RunLoop所在的协程中访问
	hs             HandshakeServer
	chunkComposer  *ChunkComposer
	packer         *MessagePacker
	objectEncoding float64
	streams        int
	ackSize        uint32
	inAckSize      uint32
	lastAckSize    uint32
	fps            *fpsEstimator
	lcd            LazyChunkDivider
	patcher        streamIdPatcher

	isStarting   nazaatomic.Bool
	isPublishing nazaatomic.Bool
	isPlaying    nazaatomic.Bool
	isIdling     nazaatomic.Bool
	isPaused     nazaatomic.Bool
	receiveAudio nazaatomic.Bool
	receiveVideo nazaatomic.Bool
	playStreamId nazaatomic.Uint32

	// mu 保护以下字段
	//
	// 注意，持有mu时不会再去获取其他session的mu
	mu             sync.Mutex
	stat           base.BasicSessionStat
	app            string
	connectInfo    ObjectPairArray
	connectTime    time.Time
	inBitrate      bitrate.Bitrate
	publish        streamDescriptor
	play           streamDescriptor
	playGen        uint64 // play描述符每次变化时递增
	audio          base.StatAudio
	video          base.StatVideo
	audioSeqHeader []byte
	videoSeqHeader []byte
	metadata       []byte
	clock          uint32
	players        map[string]struct{}
	gopCache       *GopCache

	pingStop    chan struct{}
	disposeOnce sync.Once
}

func NewServerSession(server *Server, conn net.Conn) *ServerSession {
	uk := base.GenUkRtmpServerSession()
	remoteAddr := conn.RemoteAddr().String()
	option := server.option
	s := &ServerSession{
		uniqueKey:  uk,
		server:     server,
		remoteAddr: remoteAddr,
		isLocal:    isLoopbackAddr(remoteAddr),
		conn: connection.New(conn, func(opt *connection.Option) {
			opt.ReadBufSize = readBufSize
			opt.WriteTimeoutMs = base.RtmpServerSessionWriteTimeoutMs
			opt.ReadTimeoutMs = option.PingIntervalMs + option.PingTimeoutMs
		}),
		chunkComposer: NewChunkComposer(),
		packer:        NewMessagePacker(),
		fps:           newFpsEstimator(time.Duration(fpsEstimateDurationMs) * time.Millisecond),
		inBitrate: bitrate.New(func(opt *bitrate.Option) {
			opt.WindowMs = bitrateIntervalSec * 1000
		}),
		stat:     base.NewBasicSessionStat(uk, remoteAddr),
		players:  make(map[string]struct{}),
		pingStop: make(chan struct{}),
	}
	s.relay = newRelayWriter(uk, s.conn)
	s.isStarting.Store(true)
	s.receiveAudio.Store(true)
	s.receiveVideo.Store(true)

	server.registry.AddSession(s)
	s.mu.Lock()
	s.stat.SetSessionId(s.id)
	s.mu.Unlock()

	Log.Infof("[%s] lifecycle new rtmp server session. id=%s, remoteAddr=%s", uk, s.id, remoteAddr)
	return s
}

func (s *ServerSession) RunLoop() (err error) {
	defer func() {
		Log.Infof("[%s] rtmp server session run loop done. err=%+v", s.uniqueKey, err)
		s.Dispose()
	}()
	return s.runReadLoop()
}

// Dispose 关闭session，可重复调用，可在任意协程中调用
func (s *ServerSession) Dispose() error {
	s.disposeOnce.Do(func() {
		Log.Infof("[%s] lifecycle dispose rtmp server session.", s.uniqueKey)

		// 先置为非活跃状态，之后的清理不再向对端回复信令
		s.isStarting.Store(false)

		s.deletePlayStream(0, true)
		s.deletePublishStream(0, true)

		close(s.pingStop)

		connStat := s.conn.GetStat()
		_ = s.server.bus.Emit(Event{
			Type:          EventDoneConnect,
			SessionId:     s.Id(),
			RemoteAddr:    s.remoteAddr,
			App:           s.appSnapshot(),
			ReadBytesSum:  connStat.ReadBytesSum,
			WroteBytesSum: connStat.WroteBytesSum,
		})
		s.server.registry.AddStat(connStat.ReadBytesSum, connStat.WroteBytesSum)
		s.server.registry.RemoveSession(s.Id())

		s.relay.Dispose()
		_ = s.conn.Close()
	})
	return nil
}

func (s *ServerSession) UniqueKey() string {
	return s.uniqueKey
}

func (s *ServerSession) Id() string {
	return s.id
}

func (s *ServerSession) RemoteAddr() string {
	return s.remoteAddr
}

func (s *ServerSession) IsAlive() bool {
	return s.isStarting.Load()
}

func (s *ServerSession) IsPublishing() bool {
	return s.isPublishing.Load()
}

func (s *ServerSession) IsPlaying() bool {
	return s.isPlaying.Load()
}

// IsIdlingOn 是否在`streamPath`上等待发布者
func (s *ServerSession) IsIdlingOn(streamPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isIdling.Load() && s.play.StreamPath == streamPath
}

// PlayerIds 作为发布者时，当前所有播放者的session id
func (s *ServerSession) PlayerIds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerIdsLocked()
}

// UpdateStat 由外部定时调用，计算`intervalSec`周期内的带宽
func (s *ServerSession) UpdateStat(intervalSec uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stat.UpdateStatWitchConn(s.conn, intervalSec)
}

func (s *ServerSession) GetStat() base.StatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	stat := s.stat.GetStatWithConn(s.conn)
	stat.App = s.app
	if !s.connectTime.IsZero() {
		stat.ConnectTime = s.connectTime.Format("2006-01-02 15:04:05.000")
		stat.DurationMs = time.Since(s.connectTime).Milliseconds()
	}
	stat.IsPublishing = s.isPublishing.Load()
	stat.IsPlaying = s.isPlaying.Load()
	stat.IsIdling = s.isIdling.Load()
	stat.Publish = s.publish.toStat()
	stat.Play = s.play.toStat()
	if stat.IsPublishing {
		stat.BitrateKbits = int(s.inBitrate.Rate())
		if s.audio.Codec != 0 {
			audio := s.audio
			stat.Audio = &audio
		}
		if s.video.Codec != 0 {
			video := s.video
			stat.Video = &video
		}
	}
	return stat
}

// ----- 读循环 ----------------------------------------------------------------------------------------------------------

func (s *ServerSession) runReadLoop() error {
	buf := make([]byte, readBufSize)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.inBitrate.Add(n)
		s.mu.Unlock()
		b := buf[:n]

		if !s.hs.IsDone() {
			used, s0s1s2, err := s.hs.Feed(b)
			if err != nil {
				Log.Errorf("[%s] handshake failed. err=%+v, data=%s", s.uniqueKey, err, hex.Dump(nazabytes.Prefix(b, 16)))
				return err
			}
			if s0s1s2 != nil {
				Log.Infof("[%s] <----- Handshake S0+S1+S2", s.uniqueKey)
				if err := s.relay.WriteDirect(s0s1s2); err != nil {
					return err
				}
			}
			b = b[used:]
			if !s.hs.IsDone() {
				continue
			}
			Log.Infof("[%s] -----> Handshake C2", s.uniqueKey)
			if len(b) == 0 {
				continue
			}
		}

		if err := s.updateAck(uint32(len(b))); err != nil {
			return err
		}
		if err := s.chunkComposer.Feed(b, s.doMsg); err != nil {
			Log.Errorf("[%s] process chunk failed. err=%+v", s.uniqueKey, err)
			return err
		}
		if !s.isStarting.Load() {
			return base.ErrDisposed
		}
	}
}

func (s *ServerSession) updateAck(n uint32) error {
	s.inAckSize += n
	if s.inAckSize >= ackSizeWrapThreshold {
		s.inAckSize = 0
		s.lastAckSize = 0
	}
	if s.ackSize > 0 && s.inAckSize-s.lastAckSize >= s.ackSize {
		s.lastAckSize = s.inAckSize
		return s.packer.WriteAcknowledgement(s, int(s.inAckSize))
	}
	return nil
}

func (s *ServerSession) doMsg(msg base.RtmpMsg) error {
	switch msg.Header.MsgTypeId {
	case base.RtmpTypeIdSetChunkSize:
		// noop
		// 因为底层的 chunk composer 已经处理过了，这里就不用处理
		Log.Debugf("[%s] -----> SetChunkSize. val=%d", s.uniqueKey, s.chunkComposer.PeerChunkSize())
	case base.RtmpTypeIdAbort, base.RtmpTypeIdAck, base.RtmpTypeIdBandwidth:
		// noop
	case base.RtmpTypeIdWinAckSize:
		if len(msg.Payload) < 4 {
			return base.NewErrRtmpShortBuffer(4, len(msg.Payload), "win ack size")
		}
		s.ackSize = bele.BeUint32(msg.Payload)
		Log.Debugf("[%s] -----> Window Acknowledgement Size. val=%d", s.uniqueKey, s.ackSize)
	case base.RtmpTypeIdUserControl:
		if len(msg.Payload) >= 2 && msg.Payload[1] == base.RtmpUserControlPingResponse {
			Log.Debugf("[%s] -----> PingResponse", s.uniqueKey)
		}
	case base.RtmpTypeIdCommandMessageAmf0:
		return s.doCommandMessage(msg, msg.Payload)
	case base.RtmpTypeIdCommandMessageAmf3:
		if len(msg.Payload) < 1 {
			return base.NewErrRtmpShortBuffer(1, 0, "amf3 command")
		}
		return s.doCommandMessage(msg, msg.Payload[1:])
	case base.RtmpTypeIdMetadata:
		s.onDataMessage(msg, msg.Payload)
	case base.RtmpTypeIdDataMessageAmf3:
		if len(msg.Payload) > 1 {
			s.onDataMessage(msg, msg.Payload[1:])
		}
	case base.RtmpTypeIdSharedObjectAmf0, base.RtmpTypeIdSharedObjectAmf3:
		Log.Debugf("[%s] -----> shared object, ignore. typeid=%d", s.uniqueKey, msg.Header.MsgTypeId)
	case base.RtmpTypeIdAudio:
		s.onAudio(msg)
	case base.RtmpTypeIdVideo:
		s.onVideo(msg)
	default:
		Log.Warnf("[%s] read unknown message. typeid=%d, header=%+v", s.uniqueKey, msg.Header.MsgTypeId, msg.Header)
	}
	return nil
}

// ----- 发送 -----------------------------------------------------------------------------------------------------------

// Write 信令的发送出口，会先写出cork中的数据，保证顺序
func (s *ServerSession) Write(b []byte) (int, error) {
	if err := s.relay.WriteDirect(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// newPacker 非RunLoop所在协程发送信令时使用独立的packer
func (s *ServerSession) newPacker() *MessagePacker {
	p := NewMessagePacker()
	p.SetChunkSize(s.server.option.ChunkSize)
	return p
}

func (s *ServerSession) writeOnStatus(streamId int, level, code, description string) {
	Log.Infof("[%s] <----- onStatus('%s'). description=%s", s.uniqueKey, code, description)
	if err := s.packer.WriteOnStatus(s, streamId, level, code, description); err != nil {
		Log.Warnf("[%s] write onStatus failed. err=%+v", s.uniqueKey, err)
	}
}

func (s *ServerSession) startPing() {
	interval := time.Duration(s.server.option.PingIntervalMs) * time.Millisecond
	if interval <= 0 {
		return
	}
	packer := s.newPacker()
	s.mu.Lock()
	connectTime := s.connectTime
	s.mu.Unlock()
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				ts := uint32(time.Since(connectTime).Milliseconds())
				Log.Debugf("[%s] <----- PingRequest. ts=%d", s.uniqueKey, ts)
				if err := packer.WritePingRequest(s, ts); err != nil {
					return
				}
			case <-s.pingStop:
				return
			}
		}
	}()
}

// ----- 事件 -----------------------------------------------------------------------------------------------------------

func (s *ServerSession) emit(t EventType, d streamDescriptor) error {
	return s.server.bus.Emit(Event{
		Type:        t,
		SessionId:   s.Id(),
		RemoteAddr:  s.remoteAddr,
		App:         s.appSnapshot(),
		ConnectInfo: s.connectInfoSnapshot(),
		StreamPath:  d.StreamPath,
		StreamName:  d.StreamName,
		Args:        d.Args,
	})
}

func (s *ServerSession) appSnapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.app
}

func (s *ServerSession) connectInfoSnapshot() ObjectPairArray {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectInfo
}

func (s *ServerSession) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(s.server.option.StoreTimeoutMs)*time.Millisecond)
}

// ---------------------------------------------------------------------------------------------------------------------

// parseStreamName 将`name?k=v`拆分为流名称和参数，同名参数只取第一个
func parseStreamName(raw string) (name string, args map[string]string) {
	args = make(map[string]string)
	name = raw
	pos := strings.IndexByte(raw, '?')
	if pos == -1 {
		return
	}
	name = raw[:pos]
	values, err := url.ParseQuery(raw[pos+1:])
	if err != nil {
		Log.Warnf("parse stream name query failed. raw=%s, err=%+v", raw, err)
	}
	for k, v := range values {
		if len(v) > 0 {
			args[k] = v[0]
		}
	}
	return
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
