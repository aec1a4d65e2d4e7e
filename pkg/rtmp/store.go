// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/q191201771/lalrelay/pkg/base"
)

type StreamStatus int

const (
	StreamStatusPending StreamStatus = iota
	StreamStatusPublishing
	StreamStatusClosed
)

func (s StreamStatus) String() string {
	switch s {
	case StreamStatusPending:
		return "pending"
	case StreamStatusPublishing:
		return "publishing"
	case StreamStatusClosed:
		return "closed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// MarshalText 配置文件以及http接口中使用字符串形式
func (s StreamStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *StreamStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pending":
		*s = StreamStatusPending
	case "publishing":
		*s = StreamStatusPublishing
	case "closed":
		*s = StreamStatusClosed
	default:
		return fmt.Errorf("invalid stream status. status=%s", text)
	}
	return nil
}

// StreamRecord 预先创建的流。推流时使用Name查找，TokenHash为token的sha256 hex
type StreamRecord struct {
	Name       string       `json:"name" yaml:"name"`
	Title      string       `json:"title" yaml:"title"`
	TokenHash  string       `json:"token_hash" yaml:"token_hash"`
	Status     StreamStatus `json:"status" yaml:"status"`
	CreateTime string       `json:"create_time" yaml:"create_time"`
}

// IStreamStore 流信息的存储
//
// 实现需要协程安全。session在自己的协程中同步调用，ctx带有超时
type IStreamStore interface {
	// Find 流不存在时返回 base.ErrStreamNotFound
	Find(ctx context.Context, name string) (StreamRecord, error)

	// Create 流已存在时返回 base.ErrStreamExist
	Create(ctx context.Context, record StreamRecord) error

	// UpdateStatus 流不存在时返回 base.ErrStreamNotFound
	UpdateStatus(ctx context.Context, name string, status StreamStatus) error
}

// HashToken sha256 hex
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyToken 空token或者空hash都校验失败
func VerifyToken(token string, tokenHash string) bool {
	if token == "" || tokenHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(tokenHash)) == 1
}

// GenToken 生成推流token，长度为28的hex字符串
func GenToken() string {
	b := make([]byte, 14)
	if _, err := rand.Read(b); err != nil {
		Log.Errorf("gen token failed. err=%+v", err)
	}
	return hex.EncodeToString(b)
}

// GenStreamName 生成长度为10的流名称
func GenStreamName() string {
	return base.GenRandomString(10)
}
