// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"net"
	"sync"

	"github.com/q191201771/lalrelay/pkg/base"
)

type ServerOption struct {
	Addr string

	ChunkSize      int  // 发送给对端的chunk size
	PingIntervalMs int  // 发送ping request的周期
	PingTimeoutMs  int  // 一个ping周期之后，再等待多久没有收到任何数据则关闭连接
	GopCache       bool // 是否为新加入的播放者缓存最近一个gop

	AuthPublish bool // 推流是否需要校验token
	AuthPlay    bool // 拉流是否需要校验token，本地回环地址的拉流不校验

	StoreTimeoutMs int // 访问 IStreamStore 的超时时间
}

var defaultServerOption = ServerOption{
	Addr:           ":1935",
	ChunkSize:      defaultChunkSize,
	PingIntervalMs: 60000,
	PingTimeoutMs:  30000,
	GopCache:       true,
	AuthPublish:    false,
	AuthPlay:       false,
	StoreTimeoutMs: 3000,
}

type ModServerOption func(option *ServerOption)

type Server struct {
	uniqueKey string
	option    ServerOption
	store     IStreamStore
	registry  *Registry
	bus       *EventBus

	mu sync.Mutex
	ln net.Listener
}

func NewServer(store IStreamStore, modOptions ...ModServerOption) *Server {
	option := defaultServerOption
	for _, fn := range modOptions {
		fn(&option)
	}
	if option.ChunkSize <= 0 || option.ChunkSize > maxChunkSize {
		option.ChunkSize = defaultChunkSize
	}

	uk := base.GenUkRtmpServer()
	Log.Infof("[%s] lifecycle new rtmp server. option=%+v", uk, option)
	return &Server{
		uniqueKey: uk,
		option:    option,
		store:     store,
		registry:  NewRegistry(),
		bus:       NewEventBus(),
	}
}

func (server *Server) Listen() (err error) {
	ln, err := net.Listen("tcp", server.option.Addr)
	if err != nil {
		return
	}
	server.mu.Lock()
	server.ln = ln
	server.mu.Unlock()
	Log.Infof("[%s] start rtmp server listen. addr=%s", server.uniqueKey, server.option.Addr)
	return
}

// Addr 监听成功后的实际地址，未监听时返回nil
func (server *Server) Addr() net.Addr {
	server.mu.Lock()
	defer server.mu.Unlock()
	if server.ln == nil {
		return nil
	}
	return server.ln.Addr()
}

func (server *Server) RunLoop() error {
	server.mu.Lock()
	ln := server.ln
	server.mu.Unlock()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go server.HandleConn(conn)
	}
}

// HandleConn 在当前协程中处理一个连接，直到连接关闭
func (server *Server) HandleConn(conn net.Conn) error {
	Log.Infof("[%s] accept a rtmp connection. remoteAddr=%s", server.uniqueKey, conn.RemoteAddr().String())
	session := NewServerSession(server, conn)
	return session.RunLoop()
}

// Dispose 关闭监听，并关闭所有session
func (server *Server) Dispose() (err error) {
	server.mu.Lock()
	ln := server.ln
	server.mu.Unlock()
	if ln != nil {
		err = ln.Close()
	}
	for _, s := range server.registry.Sessions() {
		s.Dispose()
	}
	return
}

func (server *Server) Registry() *Registry {
	return server.registry
}

func (server *Server) EventBus() *EventBus {
	return server.bus
}

func (server *Server) Store() IStreamStore {
	return server.store
}

func (server *Server) Option() ServerOption {
	return server.option
}
