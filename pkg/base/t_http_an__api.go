// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

// ----- request -------------------------------------------------------------------------------------------------------

type ApiStreamCreateReq struct {
	Title string `json:"title"`
}

// ----- response ------------------------------------------------------------------------------------------------------

const (
	ErrorCodeSucc = 0
	DespSucc      = "succ"

	ErrorCodePageNotFound = 404
	DespPageNotFound      = "page not found"

	ErrorCodeUnauthorized = 401
	DespUnauthorized      = "unauthorized"

	ErrorCodeStreamNotFound = 1001
	DespStreamNotFound      = "stream not found"
	ErrorCodeParamMissing   = 1002
	DespParamMissing        = "param missing"
	ErrorCodeStoreFail      = 2001
	DespStoreFail           = "store fail"
)

type ApiRespBasic struct {
	ErrorCode int    `json:"error_code"`
	Desp      string `json:"desp"`
}

var ApiNotFoundResp = ApiRespBasic{
	ErrorCode: ErrorCodePageNotFound,
	Desp:      DespPageNotFound,
}

type ApiNet struct {
	InBytes  uint64 `json:"inbytes"`
	OutBytes uint64 `json:"outbytes"`
}

type ApiClients struct {
	Accepted uint64 `json:"accepted"`
	Active   int    `json:"active"`
	Rtmp     int    `json:"rtmp"`
}

type ApiServerInfo struct {
	LalInfo
	UptimeSec int64      `json:"uptime_sec"`
	Net       ApiNet     `json:"net"`
	Clients   ApiClients `json:"clients"`
}

type ApiServerInfoResp struct {
	ApiRespBasic
	Data ApiServerInfo `json:"data"`
}

type ApiStreamCreateResp struct {
	ApiRespBasic
	Data struct {
		ServerUrl   string `json:"server_url"`
		ManifestUrl string `json:"manifest_url"`
		Name        string `json:"name"`
		Token       string `json:"token"`
	} `json:"data"`
}

type ApiPublisherInfo struct {
	App            string     `json:"app"`
	Stream         string     `json:"stream"`
	ClientId       string     `json:"client_id"`
	ConnectCreated string     `json:"connect_created"`
	Bytes          uint64     `json:"bytes"`
	Ip             string     `json:"ip"`
	Audio          *StatAudio `json:"audio"`
	Video          *StatVideo `json:"video"`
}

type ApiSubscriberInfo struct {
	App            string `json:"app"`
	Stream         string `json:"stream"`
	ClientId       string `json:"client_id"`
	ConnectCreated string `json:"connect_created"`
	Bytes          uint64 `json:"bytes"`
	Ip             string `json:"ip"`
	Protocol       string `json:"protocol"`
}

type ApiStreamGroup struct {
	Publisher   *ApiPublisherInfo   `json:"publisher"`
	Subscribers []ApiSubscriberInfo `json:"subscribers"`
}

// ApiStreamsResp Data 的结构为 app -> stream -> group
type ApiStreamsResp struct {
	ApiRespBasic
	Data map[string]map[string]*ApiStreamGroup `json:"data"`
}

type ApiStreamInfo struct {
	Viewers     int               `json:"viewers"`
	DurationSec float64           `json:"duration"`
	Bitrate     int               `json:"bitrate"`
	StartTime   string            `json:"start_time"`
	Arguments   map[string]string `json:"arguments"`
}

type ApiStreamInfoResp struct {
	ApiRespBasic
	Data ApiStreamInfo `json:"data"`
}
