// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package logic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/q191201771/lalrelay/pkg/base"
	"github.com/q191201771/lalrelay/pkg/rtmp"
	"github.com/q191201771/lalrelay/pkg/store"
	"github.com/q191201771/naza/pkg/nazajson"
	"github.com/q191201771/naza/pkg/nazalog"
	"gopkg.in/yaml.v3"
)

const (
	ConfFormatJson = "json"
	ConfFormatYaml = "yaml"

	// EnvPrefix 环境变量覆盖配置文件时使用的前缀
	EnvPrefix = "LALRELAY_"
)

var DefaultConfFilenameList = []string{
	filepath.FromSlash("lalrelay.conf.json"),
	filepath.FromSlash("./conf/lalrelay.conf.json"),
	filepath.FromSlash("../lalrelay.conf.json"),
	filepath.FromSlash("../conf/lalrelay.conf.json"),
	filepath.FromSlash("./conf/lalrelay.conf.yaml"),
}

type Config struct {
	ConfVersion      string           `json:"conf_version" yaml:"conf_version"`
	ServerId         string           `json:"server_id" yaml:"server_id"`
	EnvFile          string           `json:"env_file" yaml:"env_file"`
	RtmpConfig       RtmpConfig       `json:"rtmp" yaml:"rtmp"`
	AuthConfig       AuthConfig       `json:"auth" yaml:"auth"`
	HttpApiConfig    HttpApiConfig    `json:"http_api" yaml:"http_api"`
	HttpNotifyConfig HttpNotifyConfig `json:"http_notify" yaml:"http_notify"`
	StoreConfig      StoreConfig      `json:"store" yaml:"store"`
	LogConfig        LogConfig        `json:"log" yaml:"log"`
}

type RtmpConfig struct {
	Addr          string `json:"addr" yaml:"addr"`
	ChunkSize     int    `json:"chunk_size" yaml:"chunk_size"`
	PingMs        int    `json:"ping_ms" yaml:"ping_ms"`
	PingTimeoutMs int    `json:"ping_timeout_ms" yaml:"ping_timeout_ms"`
	GopCache      bool   `json:"gop_cache" yaml:"gop_cache"`
}

type AuthConfig struct {
	Publish bool `json:"publish" yaml:"publish"`
	Play    bool `json:"play" yaml:"play"`
}

type HttpApiConfig struct {
	Enable            bool   `json:"enable" yaml:"enable"`
	Addr              string `json:"addr" yaml:"addr"`
	BasicAuthUser     string `json:"basic_auth_user" yaml:"basic_auth_user"`
	BasicAuthPassword string `json:"basic_auth_password" yaml:"basic_auth_password"`
	RtmpUrl           string `json:"rtmp_url" yaml:"rtmp_url"`
	ManifestUrl       string `json:"manifest_url" yaml:"manifest_url"`
	EnableMetrics     bool   `json:"enable_metrics" yaml:"enable_metrics"`
}

type HttpNotifyConfig struct {
	Enable            bool   `json:"enable" yaml:"enable"`
	UpdateIntervalSec int    `json:"update_interval_sec" yaml:"update_interval_sec"`
	OnServerStart     string `json:"on_server_start" yaml:"on_server_start"`
	OnUpdate          string `json:"on_update" yaml:"on_update"`
	OnConnect         string `json:"on_connect" yaml:"on_connect"`
	OnDisconnect      string `json:"on_disconnect" yaml:"on_disconnect"`
	OnPubStart        string `json:"on_pub_start" yaml:"on_pub_start"`
	OnPubStop         string `json:"on_pub_stop" yaml:"on_pub_stop"`
	OnSubStart        string `json:"on_sub_start" yaml:"on_sub_start"`
	OnSubStop         string `json:"on_sub_stop" yaml:"on_sub_stop"`
}

type StoreConfig struct {
	Type      string `json:"type" yaml:"type"`
	File      string `json:"file" yaml:"file"`
	TimeoutMs int    `json:"timeout_ms" yaml:"timeout_ms"`
}

// LogConfig 字段与 nazalog.Option 的json名称一致
type LogConfig struct {
	Level         int    `json:"level" yaml:"level"`
	Filename      string `json:"filename" yaml:"filename"`
	IsToStdout    bool   `json:"is_to_stdout" yaml:"is_to_stdout"`
	IsRotateDaily bool   `json:"is_rotate_daily" yaml:"is_rotate_daily"`
	ShortFileFlag bool   `json:"short_file_flag" yaml:"short_file_flag"`
}

// LoadConfAndInitLog 读取配置文件，应用 .env 以及环境变量，并初始化日志。失败时直接退出进程
func LoadConfAndInitLog(confFile string) *Config {
	config, err := LoadConfFile(confFile)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load conf failed. file=%s err=%+v\n", confFile, err)
		base.OsExitAndWaitPressIfWindows(1)
	}

	if err = LoadEnvFile(config.EnvFile); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load env file failed. file=%s err=%+v\n", config.EnvFile, err)
		base.OsExitAndWaitPressIfWindows(1)
	}
	if err = ApplyEnv(config, os.LookupEnv); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "apply env failed. err=%+v\n", err)
		base.OsExitAndWaitPressIfWindows(1)
	}

	// 日志初始化之后才能打印日志
	err = nazalog.Init(func(option *nazalog.Option) {
		option.Level = nazalog.Level(config.LogConfig.Level)
		option.Filename = config.LogConfig.Filename
		option.IsToStdout = config.LogConfig.IsToStdout
		option.IsRotateDaily = config.LogConfig.IsRotateDaily
		option.ShortFileFlag = config.LogConfig.ShortFileFlag
		option.AssertBehavior = nazalog.AssertError
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "initial log failed. err=%+v\n", err)
		base.OsExitAndWaitPressIfWindows(1)
	}
	Log.Info("initial log succ.")

	if config.ConfVersion != base.ConfVersion {
		Log.Warnf("config version invalid. conf version of lalrelay=%s, conf version of config file=%s",
			base.ConfVersion, config.ConfVersion)
	}
	Log.Infof("load conf file succ. filename=%s, raw content=%+v", confFile, config)
	return config
}

// LoadConfFile 根据文件后缀选择json或yaml格式
func LoadConfFile(confFile string) (*Config, error) {
	rawContent, err := os.ReadFile(confFile)
	if err != nil {
		return nil, err
	}
	format := ConfFormatJson
	switch strings.ToLower(filepath.Ext(confFile)) {
	case ".yaml", ".yml":
		format = ConfFormatYaml
	}
	return LoadConf(rawContent, format)
}

// LoadConf 解析配置内容，并为不存在的配置项设置默认值
func LoadConf(rawContent []byte, format string) (*Config, error) {
	var config Config
	var plain []byte

	switch format {
	case ConfFormatJson:
		if err := json.Unmarshal(rawContent, &config); err != nil {
			return nil, fmt.Errorf("%w. format=json, err=%v", base.ErrConfigFormat, err)
		}
		plain = rawContent
	case ConfFormatYaml:
		dec := yaml.NewDecoder(bytes.NewReader(rawContent))
		dec.KnownFields(true)
		if err := dec.Decode(&config); err != nil && err != io.EOF {
			return nil, fmt.Errorf("%w. format=yaml, err=%v", base.ErrConfigFormat, err)
		}

		// 转换成json，和json格式共用默认值的判断逻辑
		var doc map[string]interface{}
		if err := yaml.Unmarshal(rawContent, &doc); err != nil {
			return nil, fmt.Errorf("%w. format=yaml, err=%v", base.ErrConfigFormat, err)
		}
		if doc == nil {
			doc = make(map[string]interface{})
		}
		var err error
		if plain, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("%w. format=yaml, err=%v", base.ErrConfigFormat, err)
		}
	default:
		return nil, fmt.Errorf("%w. format=%s", base.ErrConfigFormat, format)
	}

	j, err := nazajson.New(plain)
	if err != nil {
		return nil, err
	}
	applyDefaults(&config, j)

	if err := config.check(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadEnvFile 文件不存在时忽略。已经存在的环境变量不会被覆盖
func LoadEnvFile(filename string) error {
	if filename == "" {
		return nil
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(filename)
}

// ApplyEnv 使用 LALRELAY_ 前缀的环境变量覆盖配置，比如 LALRELAY_RTMP_ADDR 覆盖 rtmp.addr
func ApplyEnv(config *Config, lookup func(key string) (string, bool)) error {
	for _, item := range envOverrides(config) {
		v, ok := lookup(EnvPrefix + item.key)
		if !ok {
			continue
		}
		if err := item.set(v); err != nil {
			return fmt.Errorf("%w. env=%s%s, value=%s, err=%v", base.ErrConfigFormat, EnvPrefix, item.key, v, err)
		}
	}
	return config.check()
}

// ---------------------------------------------------------------------------------------------------------------------

func applyDefaults(config *Config, j nazajson.Json) {
	if !j.Exist("env_file") {
		config.EnvFile = ".env"
	}

	if !j.Exist("rtmp.addr") {
		config.RtmpConfig.Addr = ":1935"
	}
	if !j.Exist("rtmp.chunk_size") {
		config.RtmpConfig.ChunkSize = 128
	}
	if !j.Exist("rtmp.ping_ms") {
		config.RtmpConfig.PingMs = 60000
	}
	if !j.Exist("rtmp.ping_timeout_ms") {
		config.RtmpConfig.PingTimeoutMs = 30000
	}
	if !j.Exist("rtmp.gop_cache") {
		config.RtmpConfig.GopCache = true
	}

	if !j.Exist("http_api.addr") {
		config.HttpApiConfig.Addr = ":8083"
	}
	if !j.Exist("http_api.rtmp_url") {
		config.HttpApiConfig.RtmpUrl = "rtmp://127.0.0.1:1935/live"
	}
	if !j.Exist("http_api.enable_metrics") {
		config.HttpApiConfig.EnableMetrics = true
	}

	if !j.Exist("http_notify.update_interval_sec") {
		config.HttpNotifyConfig.UpdateIntervalSec = 5
	}

	if !j.Exist("store.type") {
		config.StoreConfig.Type = store.TypeMemory
	}
	if !j.Exist("store.timeout_ms") {
		config.StoreConfig.TimeoutMs = 3000
	}

	if !j.Exist("log.level") {
		config.LogConfig.Level = int(nazalog.LevelDebug)
	}
	if !j.Exist("log.filename") {
		config.LogConfig.Filename = "./logs/lalrelay.log"
	}
	if !j.Exist("log.is_to_stdout") {
		config.LogConfig.IsToStdout = true
	}
	if !j.Exist("log.is_rotate_daily") {
		config.LogConfig.IsRotateDaily = true
	}
	if !j.Exist("log.short_file_flag") {
		config.LogConfig.ShortFileFlag = true
	}
}

func (config *Config) check() error {
	if config.RtmpConfig.ChunkSize < 128 || config.RtmpConfig.ChunkSize > 0xFFFFFF {
		return fmt.Errorf("%w. rtmp.chunk_size=%d", base.ErrConfigFormat, config.RtmpConfig.ChunkSize)
	}
	if config.RtmpConfig.PingMs < 0 || config.RtmpConfig.PingTimeoutMs < 0 {
		return fmt.Errorf("%w. rtmp.ping_ms=%d, rtmp.ping_timeout_ms=%d",
			base.ErrConfigFormat, config.RtmpConfig.PingMs, config.RtmpConfig.PingTimeoutMs)
	}
	switch config.StoreConfig.Type {
	case store.TypeMemory:
	case store.TypeYaml:
		if config.StoreConfig.File == "" {
			return fmt.Errorf("%w. store.file is required by yaml store", base.ErrConfigFormat)
		}
	default:
		return fmt.Errorf("%w. store.type=%s", base.ErrConfigFormat, config.StoreConfig.Type)
	}
	return nil
}

// serverOption 转换成 rtmp.Server 的配置
func (config *Config) serverOption() rtmp.ModServerOption {
	return func(option *rtmp.ServerOption) {
		option.Addr = config.RtmpConfig.Addr
		option.ChunkSize = config.RtmpConfig.ChunkSize
		option.PingIntervalMs = config.RtmpConfig.PingMs
		option.PingTimeoutMs = config.RtmpConfig.PingTimeoutMs
		option.GopCache = config.RtmpConfig.GopCache
		option.AuthPublish = config.AuthConfig.Publish
		option.AuthPlay = config.AuthConfig.Play
		option.StoreTimeoutMs = config.StoreConfig.TimeoutMs
	}
}

type envOverride struct {
	key string
	set func(v string) error
}

func envOverrides(c *Config) []envOverride {
	str := func(p *string) func(string) error {
		return func(v string) error {
			*p = v
			return nil
		}
	}
	num := func(p *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*p = n
			return nil
		}
	}
	flag := func(p *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*p = b
			return nil
		}
	}

	return []envOverride{
		{"SERVER_ID", str(&c.ServerId)},
		{"RTMP_ADDR", str(&c.RtmpConfig.Addr)},
		{"RTMP_CHUNK_SIZE", num(&c.RtmpConfig.ChunkSize)},
		{"RTMP_PING_MS", num(&c.RtmpConfig.PingMs)},
		{"RTMP_PING_TIMEOUT_MS", num(&c.RtmpConfig.PingTimeoutMs)},
		{"RTMP_GOP_CACHE", flag(&c.RtmpConfig.GopCache)},
		{"AUTH_PUBLISH", flag(&c.AuthConfig.Publish)},
		{"AUTH_PLAY", flag(&c.AuthConfig.Play)},
		{"HTTP_API_ENABLE", flag(&c.HttpApiConfig.Enable)},
		{"HTTP_API_ADDR", str(&c.HttpApiConfig.Addr)},
		{"HTTP_API_BASIC_AUTH_USER", str(&c.HttpApiConfig.BasicAuthUser)},
		{"HTTP_API_BASIC_AUTH_PASSWORD", str(&c.HttpApiConfig.BasicAuthPassword)},
		{"HTTP_API_RTMP_URL", str(&c.HttpApiConfig.RtmpUrl)},
		{"HTTP_API_MANIFEST_URL", str(&c.HttpApiConfig.ManifestUrl)},
		{"HTTP_NOTIFY_ENABLE", flag(&c.HttpNotifyConfig.Enable)},
		{"STORE_TYPE", str(&c.StoreConfig.Type)},
		{"STORE_FILE", str(&c.StoreConfig.File)},
		{"STORE_TIMEOUT_MS", num(&c.StoreConfig.TimeoutMs)},
		{"LOG_LEVEL", num(&c.LogConfig.Level)},
	}
}
