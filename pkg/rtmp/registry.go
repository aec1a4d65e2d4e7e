// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"fmt"
	"sync"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/naza/pkg/nazaatomic"
)

type RegistryStats struct {
	InBytes  uint64
	OutBytes uint64
	Accepted uint64
}

// Registry 所有session的索引，以及每个流路径对应的发布者
//
// 一个路径存在映射，当且仅当对应的session正在发布
//
// 注意，持有Registry的锁时不会调用session的任何方法，避免两把锁嵌套
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*ServerSession // session id -> session
	publishers map[string]string         // stream path -> session id

	inBytes  nazaatomic.Uint64
	outBytes nazaatomic.Uint64
	accepted nazaatomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:   make(map[string]*ServerSession),
		publishers: make(map[string]string),
	}
}

// AddSession 生成唯一的session id，赋值给session并注册
//
// 注意，session此时还未被其他协程访问，id之后不再变化
func (r *Registry) AddSession(session *ServerSession) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := base.GenRandomString(base.SessionIdLength)
		if _, ok := r.sessions[id]; !ok {
			session.id = id
			r.sessions[id] = session
			return id
		}
	}
}

func (r *Registry) RemoveSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) GetSession(id string) *ServerSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// GetSessions 按id批量获取，不存在的id被忽略
func (r *Registry) GetSessions(ids []string) []*ServerSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ServerSession, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Sessions 所有session的拷贝
func (r *Registry) Sessions() []*ServerSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ServerSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// PutPublisher 路径已经被其他session发布时返回 base.ErrStreamExist，不修改映射
func (r *Registry) PutPublisher(streamPath string, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if curr, ok := r.publishers[streamPath]; ok && curr != id {
		return fmt.Errorf("%w. path=%s, publisher=%s", base.ErrStreamExist, streamPath, curr)
	}
	r.publishers[streamPath] = id
	return nil
}

// RemovePublisher 只有当路径映射到`id`时才删除
func (r *Registry) RemovePublisher(streamPath string, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if curr, ok := r.publishers[streamPath]; ok && curr == id {
		delete(r.publishers, streamPath)
	}
}

func (r *Registry) GetPublisherId(streamPath string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.publishers[streamPath]
	return id, ok
}

func (r *Registry) GetPublisher(streamPath string) *ServerSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.publishers[streamPath]
	if !ok {
		return nil
	}
	return r.sessions[id]
}

func (r *Registry) PublisherCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.publishers)
}

// IdlePlayers 在`streamPath`上等待发布者的播放session
func (r *Registry) IdlePlayers(streamPath string) []*ServerSession {
	var out []*ServerSession
	for _, s := range r.Sessions() {
		if s.IsIdlingOn(streamPath) {
			out = append(out, s)
		}
	}
	return out
}

// AddStat session结束时累加字节数
func (r *Registry) AddStat(inBytes, outBytes uint64) {
	r.inBytes.Add(inBytes)
	r.outBytes.Add(outBytes)
}

func (r *Registry) IncAccepted() {
	r.accepted.Increment()
}

func (r *Registry) Stats() RegistryStats {
	return RegistryStats{
		InBytes:  r.inBytes.Load(),
		OutBytes: r.outBytes.Load(),
		Accepted: r.accepted.Load(),
	}
}

// Snapshots 所有session某一时刻的快照
func (r *Registry) Snapshots() []base.StatSession {
	sessions := r.Sessions()
	out := make([]base.StatSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.GetStat())
	}
	return out
}

// StopByPath 关闭路径上的发布者
//
// @return 路径上是否存在发布者
func (r *Registry) StopByPath(streamPath string) bool {
	s := r.GetPublisher(streamPath)
	if s == nil {
		return false
	}
	Log.Infof("[%s] stop by path. path=%s", s.UniqueKey(), streamPath)
	s.Dispose()
	return true
}
