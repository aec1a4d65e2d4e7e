// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package logic

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/lalrelay/pkg/rtmp"
	"github.com/q191201771/lalrelay/pkg/store"
	"github.com/q191201771/naza/pkg/assert"
)

func newTestHttpApiServer(cfg HttpApiConfig) (*HttpApiServer, *store.MemoryStore) {
	st := store.NewMemoryStore()
	server := rtmp.NewServer(st)
	metrics := NewMetrics(server.Registry())
	server.EventBus().Subscribe(metrics)
	return NewHttpApiServer(cfg, "test", server, st, metrics), st
}

func doRequest(h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHttpApi_ServerInfo(t *testing.T) {
	h, _ := newTestHttpApiServer(HttpApiConfig{})
	h.rtmpServer.Registry().AddStat(10, 20)
	h.rtmpServer.Registry().IncAccepted()

	rec := doRequest(h.Handler(), http.MethodGet, "/api/server", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, base.LalHttpApiServer, rec.Header().Get("Server"))

	var v base.ApiServerInfoResp
	assert.Equal(t, nil, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, base.ErrorCodeSucc, v.ErrorCode)
	assert.Equal(t, "test", v.Data.ServerId)
	assert.Equal(t, base.LalVersion, v.Data.LalVersion)
	assert.Equal(t, uint64(10), v.Data.Net.InBytes)
	assert.Equal(t, uint64(20), v.Data.Net.OutBytes)
	assert.Equal(t, uint64(1), v.Data.Clients.Accepted)
	assert.Equal(t, 0, v.Data.Clients.Active)
}

func TestHttpApi_CreateStream(t *testing.T) {
	h, st := newTestHttpApiServer(HttpApiConfig{
		RtmpUrl:     "rtmp://127.0.0.1/live",
		ManifestUrl: "http://127.0.0.1:9001/live/",
	})

	rec := doRequest(h.Handler(), http.MethodPost, "/api/streams", []byte(`{"title": "hello"}`))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var v base.ApiStreamCreateResp
	assert.Equal(t, nil, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "rtmp://127.0.0.1/live", v.Data.ServerUrl)
	assert.Equal(t, 10, len(v.Data.Name))
	assert.Equal(t, 28, len(v.Data.Token))
	assert.Equal(t, "http://127.0.0.1:9001/live/"+v.Data.Name+"/index.m3u8", v.Data.ManifestUrl)

	// 只保存token的hash
	r, err := st.Find(context.Background(), v.Data.Name)
	assert.Equal(t, nil, err)
	assert.Equal(t, "hello", r.Title)
	assert.Equal(t, rtmp.StreamStatusPending, r.Status)
	assert.Equal(t, true, r.TokenHash != v.Data.Token)
	assert.Equal(t, true, rtmp.VerifyToken(v.Data.Token, r.TokenHash))

	// 没有body时使用默认标题
	rec = doRequest(h.Handler(), http.MethodPost, "/api/streams", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, nil, json.Unmarshal(rec.Body.Bytes(), &v))
	r, err = st.Find(context.Background(), v.Data.Name)
	assert.Equal(t, nil, err)
	assert.Equal(t, "Stream "+v.Data.Name, r.Title)
	assert.Equal(t, 2, len(st.List()))

	rec = doRequest(h.Handler(), http.MethodPost, "/api/streams", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHttpApi_StreamNotFound(t *testing.T) {
	h, _ := newTestHttpApiServer(HttpApiConfig{})

	rec := doRequest(h.Handler(), http.MethodGet, "/api/streams/live/notexist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var v base.ApiRespBasic
	assert.Equal(t, nil, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, base.ErrorCodeStreamNotFound, v.ErrorCode)

	rec = doRequest(h.Handler(), http.MethodDelete, "/api/streams/live/notexist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(h.Handler(), http.MethodGet, "/api/streams", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var streams base.ApiStreamsResp
	assert.Equal(t, nil, json.Unmarshal(rec.Body.Bytes(), &streams))
	assert.Equal(t, 0, len(streams.Data))

	rec = doRequest(h.Handler(), http.MethodGet, "/api/notexist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, nil, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, base.ErrorCodePageNotFound, v.ErrorCode)
}

func TestHttpApi_BasicAuth(t *testing.T) {
	h, _ := newTestHttpApiServer(HttpApiConfig{BasicAuthUser: "admin", BasicAuthPassword: "secret"})
	handler := h.Handler()

	rec := doRequest(handler, http.MethodGet, "/api/server", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/server", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/server", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// metrics不需要认证
	rec = doRequest(handler, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHttpApi_Metrics(t *testing.T) {
	h, _ := newTestHttpApiServer(HttpApiConfig{})
	handler := h.Handler()

	_ = h.rtmpServer.EventBus().Emit(rtmp.Event{Type: rtmp.EventPostPublish, SessionId: "A"})
	doRequest(handler, http.MethodGet, "/api/streams/live/notexist", nil)

	rec := doRequest(handler, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, true, strings.Contains(body, `lalrelay_events_total{event="post-publish"} 1`))
	assert.Equal(t, true, strings.Contains(body, `lalrelay_http_api_requests_total{code="4xx"} 1`))
	assert.Equal(t, true, strings.Contains(body, "lalrelay_sessions 0"))
}

func TestGroupSnapshots(t *testing.T) {
	video := &base.StatVideo{Codec: 7, CodecName: "H264", Width: 1280, Height: 720}
	snapshots := []base.StatSession{
		{
			SessionId:    "PUB",
			IsPublishing: true,
			ReadBytesSum: 100,
			RemoteAddr:   "1.1.1.1:1000",
			Publish:      base.StatStreamDescriptor{StreamId: 1, StreamPath: "/live/a"},
			Video:        video,
		},
		{
			SessionId:     "SUB1",
			IsPlaying:     true,
			WroteBytesSum: 200,
			Play:          base.StatStreamDescriptor{StreamId: 1, StreamPath: "/live/a"},
		},
		{
			SessionId: "SUB2",
			IsIdling:  true,
			Play:      base.StatStreamDescriptor{StreamId: 1, StreamPath: "/live/b"},
		},
		{
			SessionId: "CONN",
		},
	}

	out := groupSnapshots(snapshots)
	assert.Equal(t, 1, len(out))
	assert.Equal(t, 2, len(out["live"]))

	a := out["live"]["a"]
	assert.Equal(t, "PUB", a.Publisher.ClientId)
	assert.Equal(t, uint64(100), a.Publisher.Bytes)
	assert.Equal(t, video, a.Publisher.Video)
	assert.Equal(t, 1, len(a.Subscribers))
	assert.Equal(t, "SUB1", a.Subscribers[0].ClientId)
	assert.Equal(t, uint64(200), a.Subscribers[0].Bytes)
	assert.Equal(t, "rtmp", a.Subscribers[0].Protocol)

	b := out["live"]["b"]
	assert.Equal(t, (*base.ApiPublisherInfo)(nil), b.Publisher)
	assert.Equal(t, 1, len(b.Subscribers))
}

func TestSplitStreamPath(t *testing.T) {
	app, stream, ok := splitStreamPath("/live/test")
	assert.Equal(t, true, ok)
	assert.Equal(t, "live", app)
	assert.Equal(t, "test", stream)

	_, _, ok = splitStreamPath("/live")
	assert.Equal(t, false, ok)
	_, _, ok = splitStreamPath("")
	assert.Equal(t, false, ok)
	_, _, ok = splitStreamPath("//test")
	assert.Equal(t, false, ok)
}
