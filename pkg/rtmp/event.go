// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"sync"
)

type EventType int

const (
	EventPreConnect EventType = iota + 1
	EventPostConnect
	EventDoneConnect
	EventPrePublish
	EventPostPublish
	EventDonePublish
	EventPrePlay
	EventPostPlay
	EventDonePlay
)

var eventTypeNames = map[EventType]string{
	EventPreConnect:  "pre-connect",
	EventPostConnect: "post-connect",
	EventDoneConnect: "done-connect",
	EventPrePublish:  "pre-publish",
	EventPostPublish: "post-publish",
	EventDonePublish: "done-publish",
	EventPrePlay:     "pre-play",
	EventPostPlay:    "post-play",
	EventDonePlay:    "done-play",
}

func (t EventType) String() string {
	if s, ok := eventTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// IsPre pre类型的事件可以通过返回error拒绝
func (t EventType) IsPre() bool {
	return t == EventPreConnect || t == EventPrePublish || t == EventPrePlay
}

// Event session生命周期事件
//
// connect类事件填充ConnectInfo，publish和play类事件填充StreamPath与Args，
// done-connect额外填充ReadBytesSum与WroteBytesSum
type Event struct {
	Type       EventType
	SessionId  string
	RemoteAddr string
	App        string

	ConnectInfo ObjectPairArray

	StreamPath string
	StreamName string
	Args       map[string]string

	ReadBytesSum  uint64
	WroteBytesSum uint64
}

type IEventObserver interface {
	// OnEvent 在session所在协程中同步回调
	//
	// 对于pre类型的事件，返回非nil的error会拒绝该操作，session随后被关闭。其他类型事件的返回值被忽略
	//
	// 注意，回调中不要再调用产生该事件的session的阻塞方法
	OnEvent(event Event) error
}

type EventObserverFunc func(event Event) error

func (f EventObserverFunc) OnEvent(event Event) error {
	return f(event)
}

// EventBus 按订阅顺序同步分发事件
type EventBus struct {
	mu        sync.RWMutex
	observers []IEventObserver
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

func (bus *EventBus) Subscribe(observer IEventObserver) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.observers = append(bus.observers, observer)
}

// Emit
//
// pre类型事件在第一个返回error的观察者处停止，并返回该error
func (bus *EventBus) Emit(event Event) error {
	bus.mu.RLock()
	observers := bus.observers
	bus.mu.RUnlock()

	for _, o := range observers {
		if err := o.OnEvent(event); err != nil {
			if event.Type.IsPre() {
				return err
			}
			Log.Warnf("[%s] event observer failed. event=%s, err=%+v", event.SessionId, event.Type, err)
		}
	}
	return nil
}
