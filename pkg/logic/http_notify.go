// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package logic

import (
	"net/http"
	"time"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/lalrelay/pkg/rtmp"
	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/q191201771/naza/pkg/nazahttp"
	"github.com/q191201771/naza/pkg/taskpool"
)

// HttpNotify 将session生命周期事件以json的形式post给业务方，比如触发转码
//
// 所有post在一个后台worker中串行执行，保证同一个流的事件顺序。积压超过 notifyMaxTaskLen 时丢弃
type HttpNotify struct {
	cfg      HttpNotifyConfig
	serverId string

	worker  taskpool.Pool
	pending nazaatomic.Int32
	client  *http.Client
}

var _ rtmp.IEventObserver = &HttpNotify{}

func NewHttpNotify(cfg HttpNotifyConfig, serverId string) *HttpNotify {
	worker, err := taskpool.NewPool(func(option *taskpool.Option) {
		option.InitWorkerNum = 1
		option.MaxWorkerNum = 1
	})
	if err != nil {
		Log.Errorf("create http notify worker failed. err=%+v", err)
	}
	return &HttpNotify{
		cfg:      cfg,
		serverId: serverId,
		worker:   worker,
		client: &http.Client{
			Timeout: time.Duration(notifyTimeoutSec) * time.Second,
		},
	}
}

func (h *HttpNotify) NotifyServerStart(info base.LalInfo) {
	info.ServerId = h.serverId
	h.asyncPost(h.cfg.OnServerStart, info)
}

func (h *HttpNotify) NotifyUpdate(info base.UpdateInfo) {
	info.ServerId = h.serverId
	h.asyncPost(h.cfg.OnUpdate, info)
}

// OnEvent pre类型的事件不通知，也不会拒绝
func (h *HttpNotify) OnEvent(event rtmp.Event) error {
	var url string
	switch event.Type {
	case rtmp.EventPostConnect:
		url = h.cfg.OnConnect
	case rtmp.EventDoneConnect:
		url = h.cfg.OnDisconnect
	case rtmp.EventPostPublish:
		url = h.cfg.OnPubStart
	case rtmp.EventDonePublish:
		url = h.cfg.OnPubStop
	case rtmp.EventPostPlay:
		url = h.cfg.OnSubStart
	case rtmp.EventDonePlay:
		url = h.cfg.OnSubStop
	default:
		return nil
	}

	h.asyncPost(url, base.SessionEventInfo{
		ServerId:   h.serverId,
		Event:      event.Type.String(),
		SessionId:  event.SessionId,
		RemoteAddr: event.RemoteAddr,
		StreamPath: event.StreamPath,
		AppName:    event.App,
		StreamName: event.StreamName,
		Args:       event.Args,
	})
	return nil
}

// ---------------------------------------------------------------------------------------------------------------------

func (h *HttpNotify) asyncPost(url string, info interface{}) {
	if !h.cfg.Enable || url == "" || h.worker == nil {
		return
	}

	if int(h.pending.Increment()) > notifyMaxTaskLen {
		h.pending.Decrement()
		Log.Error("http notify queue full.")
		return
	}
	h.worker.Go(func(param ...interface{}) {
		defer h.pending.Decrement()
		h.post(param[0].(string), param[1])
	}, url, info)
}

func (h *HttpNotify) post(url string, info interface{}) {
	resp, err := nazahttp.PostJson(url, info, h.client)
	if err != nil {
		Log.Errorf("http notify post error. err=%+v, url=%s, info=%+v", err, url, info)
		return
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}
