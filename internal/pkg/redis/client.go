// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 的 UniversalClient（单机/集群通用），并管理 Lua 脚本
type Client struct {
	client goredis.UniversalClient

	scripts   map[string]*goredis.Script
	scriptsMu sync.RWMutex
}

// NewClient addrs 格式为 "ip1:port1,ip2:port2"，多个地址时使用集群模式
func NewClient(addrs, password string, db int) (*Client, error) {
	if strings.TrimSpace(addrs) == "" {
		return nil, fmt.Errorf("redis addrs must not be empty")
	}
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        strings.Split(addrs, ","),
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis %s: %w", addrs, err)
	}

	return NewFromUniversal(client), nil
}

// NewFromUniversal 包装一个已经创建好的客户端（测试中使用）
func NewFromUniversal(client goredis.UniversalClient) *Client {
	return &Client{
		client:  client,
		scripts: make(map[string]*goredis.Script),
	}
}

// LoadScriptFromContent 注册并预加载一个 Lua 脚本
func (c *Client) LoadScriptFromContent(name, content string) error {
	script := goredis.NewScript(content)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := script.Load(ctx, c.client).Err(); err != nil {
		return fmt.Errorf("load script %s: %w", name, err)
	}

	c.scriptsMu.Lock()
	c.scripts[name] = script
	c.scriptsMu.Unlock()
	return nil
}

// RunScript 通过 EVALSHA 执行已注册的脚本，脚本缓存丢失时自动回退到 EVAL
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.scriptsMu.RLock()
	script, ok := c.scripts[name]
	c.scriptsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %s is not loaded", name)
	}
	return script.Run(ctx, c.client, keys, args...).Result()
}

func (c *Client) GetClient() goredis.UniversalClient {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}
