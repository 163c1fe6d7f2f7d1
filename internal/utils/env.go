// 包 utils：环境变量读取与外部连接（Postgres / Redis）工具
package utils

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString：空值回退默认
func EnvString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// EnvInt：解析失败回退默认
func EnvInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func EnvFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// EnvBool：true/1/yes 为真，false/0/no 为假，其余回退默认
func EnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return def
}

// EnvSeconds：以秒为单位的时长
func EnvSeconds(key string, def time.Duration) time.Duration {
	if n := EnvInt(key, -1); n >= 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

// EnvMillis：以毫秒为单位的时长
func EnvMillis(key string, def time.Duration) time.Duration {
	if n := EnvInt(key, -1); n >= 0 {
		return time.Duration(n) * time.Millisecond
	}
	return def
}
