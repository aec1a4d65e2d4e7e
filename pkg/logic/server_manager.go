// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package logic

import (
	"context"
	"sync"
	"time"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/lalrelay/pkg/rtmp"
	"github.com/q191201771/lalrelay/pkg/store"
	"github.com/q191201771/naza/pkg/bininfo"
	"github.com/q191201771/naza/pkg/nazaerrors"
	"golang.org/x/sync/errgroup"
)

// ServerManager 组装rtmp server、http api、http notify以及store，并管理它们的生命周期
type ServerManager struct {
	config *Config

	store         store.IListableStore
	rtmpServer    *rtmp.Server
	httpApiServer *HttpApiServer
	httpNotify    *HttpNotify
	metrics       *Metrics

	mutex    sync.Mutex
	cancel   context.CancelFunc
	disposed bool
}

func NewServerManager(config *Config) (*ServerManager, error) {
	st, err := store.New(config.StoreConfig.Type, config.StoreConfig.File)
	if err != nil {
		return nil, err
	}

	sm := &ServerManager{
		config: config,
		store:  st,
	}
	sm.rtmpServer = rtmp.NewServer(st, config.serverOption())

	sm.httpNotify = NewHttpNotify(config.HttpNotifyConfig, config.ServerId)
	sm.rtmpServer.EventBus().Subscribe(sm.httpNotify)

	if config.HttpApiConfig.EnableMetrics {
		sm.metrics = NewMetrics(sm.rtmpServer.Registry())
		sm.rtmpServer.EventBus().Subscribe(sm.metrics)
	}
	if config.HttpApiConfig.Enable {
		sm.httpApiServer = NewHttpApiServer(config.HttpApiConfig, config.ServerId, sm.rtmpServer, st, sm.metrics)
	}
	return sm, nil
}

// RunLoop 阻塞直到 Dispose 被调用，或者某个服务出错退出
func (sm *ServerManager) RunLoop() error {
	if err := sm.rtmpServer.Listen(); err != nil {
		return err
	}
	if sm.httpApiServer != nil {
		if err := sm.httpApiServer.Listen(); err != nil {
			_ = sm.rtmpServer.Dispose()
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sm.mutex.Lock()
	if sm.disposed {
		sm.mutex.Unlock()
		cancel()
		sm.shutdown()
		return nil
	}
	sm.cancel = cancel
	sm.mutex.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := sm.rtmpServer.RunLoop()
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	if sm.httpApiServer != nil {
		g.Go(sm.httpApiServer.RunLoop)
	}
	g.Go(func() error {
		sm.tickLoop(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sm.shutdown()
		return nil
	})

	sm.httpNotify.NotifyServerStart(sm.StatLalInfo())

	err := g.Wait()
	cancel()
	return err
}

func (sm *ServerManager) Dispose() {
	Log.Debug("dispose server manager.")

	sm.mutex.Lock()
	if sm.disposed {
		sm.mutex.Unlock()
		return
	}
	sm.disposed = true
	cancel := sm.cancel
	sm.mutex.Unlock()

	if cancel != nil {
		cancel()
		return
	}
	sm.shutdown()
}

func (sm *ServerManager) StatLalInfo() base.LalInfo {
	return base.LalInfo{
		ServerId:      sm.config.ServerId,
		BinInfo:       bininfo.StringifySingleLine(),
		LalVersion:    base.LalVersion,
		ApiVersion:    base.HttpApiVersion,
		NotifyVersion: base.HttpNotifyVersion,
		StartTime:     base.StartTime(),
	}
}

func (sm *ServerManager) RtmpServer() *rtmp.Server {
	return sm.rtmpServer
}

func (sm *ServerManager) Store() store.IListableStore {
	return sm.store
}

// ---------------------------------------------------------------------------------------------------------------------

func (sm *ServerManager) shutdown() {
	var e1, e2 error
	e1 = sm.rtmpServer.Dispose()
	if sm.httpApiServer != nil {
		e2 = sm.httpApiServer.Dispose()
	}
	if err := nazaerrors.CombineErrors(e1, e2); err != nil {
		Log.Warnf("shutdown with error. err=%+v", err)
	}
}

// tickLoop 定时计算session带宽，并通过http notify上报所有session的信息
func (sm *ServerManager) tickLoop(ctx context.Context) {
	uis := uint32(sm.config.HttpNotifyConfig.UpdateIntervalSec)

	t := time.NewTicker(1 * time.Second)
	defer t.Stop()
	var tickCount uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tickCount++

			if tickCount%calcSessionStatIntervalSec == 0 {
				for _, s := range sm.rtmpServer.Registry().Sessions() {
					s.UpdateStat(calcSessionStatIntervalSec)
				}
			}

			if uis != 0 && tickCount%uis == 0 {
				sm.httpNotify.NotifyUpdate(base.UpdateInfo{
					Sessions: sm.rtmpServer.Registry().Snapshots(),
				})
			}
		}
	}
}
