// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package logic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/lalrelay/pkg/rtmp"
	"github.com/q191201771/lalrelay/pkg/store"
	"github.com/q191201771/naza/pkg/bininfo"
)

// 生成的流名称冲突时的重试次数
const createStreamRetryNum = 3

type HttpApiServer struct {
	cfg        HttpApiConfig
	serverId   string
	rtmpServer *rtmp.Server
	store      store.IListableStore
	metrics    *Metrics
	startTime  time.Time

	ln  net.Listener
	srv *http.Server
}

// NewHttpApiServer
//
// @param metrics: 为nil时不提供 /metrics
func NewHttpApiServer(cfg HttpApiConfig, serverId string, rtmpServer *rtmp.Server, st store.IListableStore, metrics *Metrics) *HttpApiServer {
	h := &HttpApiServer{
		cfg:        cfg,
		serverId:   serverId,
		rtmpServer: rtmpServer,
		store:      st,
		metrics:    metrics,
		startTime:  time.Now(),
	}
	h.srv = &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return h
}

func (h *HttpApiServer) Listen() (err error) {
	if h.ln, err = net.Listen("tcp", h.cfg.Addr); err != nil {
		return
	}
	Log.Infof("start http api server listen. addr=%s", h.cfg.Addr)
	return
}

func (h *HttpApiServer) RunLoop() error {
	err := h.srv.Serve(h.ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (h *HttpApiServer) Dispose() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeoutSec)*time.Second)
	defer cancel()
	return h.srv.Shutdown(ctx)
}

// Handler 所有路由。/metrics 不需要basic auth
func (h *HttpApiServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.metrics.RequestMiddleware)
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if h.cfg.BasicAuthUser != "" {
			r.Use(middleware.BasicAuth(base.LalLibraryName, map[string]string{
				h.cfg.BasicAuthUser: h.cfg.BasicAuthPassword,
			}))
		}
		r.Get("/server", h.serverInfoHandler)
		r.Route("/streams", func(r chi.Router) {
			r.Post("/", h.createStreamHandler)
			r.Get("/", h.streamsHandler)
			r.Get("/{app}/{stream}", h.streamHandler)
			r.Delete("/{app}/{stream}", h.deleteStreamHandler)
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		feedback(w, http.StatusNotFound, base.ApiNotFoundResp)
	})
	return r
}

// ---------------------------------------------------------------------------------------------------------------------

func (h *HttpApiServer) serverInfoHandler(w http.ResponseWriter, req *http.Request) {
	registry := h.rtmpServer.Registry()
	stats := registry.Stats()

	var v base.ApiServerInfoResp
	v.ErrorCode = base.ErrorCodeSucc
	v.Desp = base.DespSucc
	v.Data.LalInfo = base.LalInfo{
		ServerId:      h.serverId,
		BinInfo:       bininfo.StringifySingleLine(),
		LalVersion:    base.LalVersion,
		ApiVersion:    base.HttpApiVersion,
		NotifyVersion: base.HttpNotifyVersion,
		StartTime:     base.StartTime(),
	}
	v.Data.UptimeSec = int64(time.Since(h.startTime).Seconds())

	// 已关闭的session累计值加上当前session的值
	v.Data.Net.InBytes = stats.InBytes
	v.Data.Net.OutBytes = stats.OutBytes
	snapshots := registry.Snapshots()
	for _, s := range snapshots {
		v.Data.Net.InBytes += s.ReadBytesSum
		v.Data.Net.OutBytes += s.WroteBytesSum
	}
	v.Data.Clients.Accepted = stats.Accepted
	v.Data.Clients.Active = registry.SessionCount()
	v.Data.Clients.Rtmp = len(snapshots)

	feedback(w, http.StatusOK, v)
}

func (h *HttpApiServer) createStreamHandler(w http.ResponseWriter, req *http.Request) {
	var info base.ApiStreamCreateReq
	body, err := io.ReadAll(req.Body)
	if err == nil && len(body) != 0 {
		err = json.Unmarshal(body, &info)
	}
	if err != nil {
		Log.Warnf("http api create stream error. err=%+v", err)
		feedback(w, http.StatusBadRequest, base.ApiRespBasic{ErrorCode: base.ErrorCodeParamMissing, Desp: base.DespParamMissing})
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), time.Duration(h.rtmpServer.Option().StoreTimeoutMs)*time.Millisecond)
	defer cancel()

	token := rtmp.GenToken()
	var record rtmp.StreamRecord
	for i := 0; i < createStreamRetryNum; i++ {
		record = rtmp.StreamRecord{
			Name:       rtmp.GenStreamName(),
			Title:      info.Title,
			TokenHash:  rtmp.HashToken(token),
			Status:     rtmp.StreamStatusPending,
			CreateTime: base.ReadableNowTime(),
		}
		if record.Title == "" {
			record.Title = "Stream " + record.Name
		}
		if err = h.store.Create(ctx, record); !errors.Is(err, base.ErrStreamExist) {
			break
		}
	}
	if err != nil {
		Log.Errorf("http api create stream failed. err=%+v", err)
		feedback(w, http.StatusInternalServerError, base.ApiRespBasic{ErrorCode: base.ErrorCodeStoreFail, Desp: base.DespStoreFail})
		return
	}
	Log.Infof("http api create stream. name=%s, title=%s", record.Name, record.Title)

	var v base.ApiStreamCreateResp
	v.ErrorCode = base.ErrorCodeSucc
	v.Desp = base.DespSucc
	v.Data.ServerUrl = h.cfg.RtmpUrl
	if h.cfg.ManifestUrl != "" {
		v.Data.ManifestUrl = strings.TrimSuffix(h.cfg.ManifestUrl, "/") + "/" + record.Name + "/index.m3u8"
	}
	v.Data.Name = record.Name
	v.Data.Token = token
	feedback(w, http.StatusCreated, v)
}

func (h *HttpApiServer) streamsHandler(w http.ResponseWriter, req *http.Request) {
	var v base.ApiStreamsResp
	v.ErrorCode = base.ErrorCodeSucc
	v.Desp = base.DespSucc
	v.Data = groupSnapshots(h.rtmpServer.Registry().Snapshots())
	feedback(w, http.StatusOK, v)
}

func (h *HttpApiServer) streamHandler(w http.ResponseWriter, req *http.Request) {
	streamPath := "/" + chi.URLParam(req, "app") + "/" + chi.URLParam(req, "stream")
	registry := h.rtmpServer.Registry()

	publisher := registry.GetPublisher(streamPath)
	if publisher == nil {
		feedback(w, http.StatusNotFound, base.ApiRespBasic{ErrorCode: base.ErrorCodeStreamNotFound, Desp: base.DespStreamNotFound})
		return
	}
	stat := publisher.GetStat()

	var v base.ApiStreamInfoResp
	v.ErrorCode = base.ErrorCodeSucc
	v.Desp = base.DespSucc
	for _, s := range registry.Snapshots() {
		if s.Play.StreamPath == streamPath {
			v.Data.Viewers++
		}
	}
	v.Data.DurationSec = float64(stat.DurationMs) / 1000
	v.Data.Bitrate = stat.BitrateKbits
	v.Data.StartTime = stat.ConnectTime
	v.Data.Arguments = stat.Publish.Args
	feedback(w, http.StatusOK, v)
}

func (h *HttpApiServer) deleteStreamHandler(w http.ResponseWriter, req *http.Request) {
	streamPath := "/" + chi.URLParam(req, "app") + "/" + chi.URLParam(req, "stream")
	if !h.rtmpServer.Registry().StopByPath(streamPath) {
		feedback(w, http.StatusNotFound, base.ApiRespBasic{ErrorCode: base.ErrorCodeStreamNotFound, Desp: base.DespStreamNotFound})
		return
	}
	Log.Infof("http api stop stream. path=%s", streamPath)
	w.Header().Add("Server", base.LalHttpApiServer)
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------------------------------------------------

// groupSnapshots 按 app -> stream 聚合发布者和播放者
func groupSnapshots(snapshots []base.StatSession) map[string]map[string]*base.ApiStreamGroup {
	out := make(map[string]map[string]*base.ApiStreamGroup)
	for _, s := range snapshots {
		app, stream, ok := splitStreamPath(s.StreamPath())
		if !ok {
			continue
		}
		if out[app] == nil {
			out[app] = make(map[string]*base.ApiStreamGroup)
		}
		g := out[app][stream]
		if g == nil {
			g = &base.ApiStreamGroup{Subscribers: make([]base.ApiSubscriberInfo, 0)}
			out[app][stream] = g
		}

		switch {
		case s.IsPublishing:
			g.Publisher = &base.ApiPublisherInfo{
				App:            app,
				Stream:         stream,
				ClientId:       s.SessionId,
				ConnectCreated: s.ConnectTime,
				Bytes:          s.ReadBytesSum,
				Ip:             s.RemoteAddr,
				Audio:          s.Audio,
				Video:          s.Video,
			}
		case s.Play.StreamPath != "":
			g.Subscribers = append(g.Subscribers, base.ApiSubscriberInfo{
				App:            app,
				Stream:         stream,
				ClientId:       s.SessionId,
				ConnectCreated: s.ConnectTime,
				Bytes:          s.WroteBytesSum,
				Ip:             s.RemoteAddr,
				Protocol:       "rtmp",
			})
		}
	}
	return out
}

// splitStreamPath "/live/test" -> "live", "test"
func splitStreamPath(streamPath string) (app, stream string, ok bool) {
	items := strings.SplitN(strings.TrimPrefix(streamPath, "/"), "/", 2)
	if len(items) != 2 || items[0] == "" || items[1] == "" {
		return "", "", false
	}
	return items[0], items[1], true
}

func feedback(w http.ResponseWriter, code int, v interface{}) {
	resp, _ := json.Marshal(v)
	w.Header().Add("Server", base.LalHttpApiServer)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(resp)
}
