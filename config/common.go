package config

import "time"

// Config 配置主体
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	WS       WSConfig       `mapstructure:"ws"`
	Log      LogConfig      `mapstructure:"log"`
	Logstash LogstashConfig `mapstructure:"logstash"`
}

// APIConfig REST 后端配置
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WSConfig 实时网关配置
type WSConfig struct {
	URL            string        `mapstructure:"url" validate:"required,url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// LogConfig 日志级别配置
type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// LogstashConfig 远程日志上报（可选）
type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
}

// 缺省值
const (
	DefaultAPITimeout     = 15 * time.Second
	DefaultReconnectDelay = 5 * time.Second
)

func (c *Config) applyDefaults() {
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.WS.ReconnectDelay == 0 {
		c.WS.ReconnectDelay = DefaultReconnectDelay
	}
}
