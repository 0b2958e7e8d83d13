package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// reloadDebounce 合并编辑器保存时触发的连续写事件
const reloadDebounce = 100 * time.Millisecond

// Config 泛型配置容器：viper 负责读取文件与环境变量，fsnotify 监控文件并热加载
type Config[T any] struct {
	v        *viper.Viper
	path     string
	value    *T
	mu       sync.RWMutex
	watchers []func(old, new T)

	validate func(T) error
	onError  func(error)
	noWatch  bool
}

// Option 配置选项
type Option[T any] func(*Config[T])

// WithDefaults 设置默认值
func WithDefaults[T any](defaults map[string]any) Option[T] {
	return func(c *Config[T]) {
		for k, v := range defaults {
			c.v.SetDefault(k, v)
		}
	}
}

// WithEnv 绑定环境变量，例如 prefix=RESTC 时 base_url 对应 RESTC_BASE_URL
func WithEnv[T any](prefix string) Option[T] {
	return func(c *Config[T]) {
		c.v.SetEnvPrefix(prefix)
		c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		c.v.AutomaticEnv()
	}
}

// WithValidate 加载和热加载时校验配置；校验失败的新配置被丢弃，旧配置继续生效
func WithValidate[T any](fn func(T) error) Option[T] {
	return func(c *Config[T]) { c.validate = fn }
}

// WithErrorHandler 热加载失败（读取、解析或校验）时回调
func WithErrorHandler[T any](fn func(error)) Option[T] {
	return func(c *Config[T]) { c.onError = fn }
}

// WithoutWatch 只加载一次，不监控文件变更
func WithoutWatch[T any]() Option[T] {
	return func(c *Config[T]) { c.noWatch = true }
}

// Load 加载配置文件，默认自动监控变更
func Load[T any](path string, opts ...Option[T]) (*Config[T], error) {
	v := viper.New()
	v.SetConfigFile(path)

	c := &Config[T]{v: v, path: path}
	for _, opt := range opts {
		opt(c)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	val, err := c.decode()
	if err != nil {
		return nil, err
	}
	c.value = &val

	if !c.noWatch {
		c.watch()
	}
	return c, nil
}

// Get 获取当前配置（并发安全，返回深拷贝）
func (c *Config[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return deepCopy(*c.value)
}

// Path 配置文件路径
func (c *Config[T]) Path() string { return c.path }

// OnChange 注册配置变更回调，仅在新配置与旧配置不同时触发
func (c *Config[T]) OnChange(callback func(old, new T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, callback)
}

// Changed 比较两个值是否不同
func Changed[T any](old, new T) bool {
	return !reflect.DeepEqual(old, new)
}

// deepCopy 通过 JSON 序列化实现深拷贝
func deepCopy[T any](src T) T {
	var dst T
	data, _ := json.Marshal(src)
	_ = json.Unmarshal(data, &dst)
	return dst
}

func (c *Config[T]) decode() (T, error) {
	var val T
	if err := c.v.Unmarshal(&val); err != nil {
		return val, fmt.Errorf("config: decode %s: %w", c.path, err)
	}
	if c.validate != nil {
		if err := c.validate(val); err != nil {
			return val, fmt.Errorf("config: validate %s: %w", c.path, err)
		}
	}
	return val, nil
}

func (c *Config[T]) watch() {
	var (
		debounceTimer *time.Timer
		debounceMu    sync.Mutex
	)

	c.v.OnConfigChange(func(_ fsnotify.Event) {
		debounceMu.Lock()
		defer debounceMu.Unlock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(reloadDebounce, c.Reload)
	})

	c.v.WatchConfig()
}

// Reload 立即重新读取配置并在变化时通知回调；文件监控触发的也是它
func (c *Config[T]) Reload() {
	oldConfig := c.Get()

	newConfig, watchers, err := c.reloadConfig()
	if err != nil {
		if c.onError != nil {
			c.onError(err)
		}
		return
	}

	if reflect.DeepEqual(oldConfig, newConfig) {
		return
	}

	for _, cb := range watchers {
		func() {
			defer func() { _ = recover() }()
			cb(oldConfig, newConfig)
		}()
	}
}

// reloadConfig 重新加载配置，返回新配置和回调列表；失败时保留旧配置
func (c *Config[T]) reloadConfig() (T, []func(old, new T), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if err := c.v.ReadInConfig(); err != nil {
		return zero, nil, fmt.Errorf("config: read %s: %w", c.path, err)
	}
	val, err := c.decode()
	if err != nil {
		return zero, nil, err
	}
	c.value = &val

	watchers := make([]func(old, new T), len(c.watchers))
	copy(watchers, c.watchers)

	return deepCopy(val), watchers, nil
}
