package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

var validate = validator.New()

// LoadConfig 从文件与环境变量加载配置并填充到 Cfg
// 环境变量以 EDGECHAT_ 为前缀，例如 EDGECHAT_API_BASE_URL
func LoadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")

	viper.SetEnvPrefix("EDGECHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// 没有配置文件时允许纯环境变量运行
	}

	cfg, err := parse()
	if err != nil {
		return err
	}

	Cfg = cfg
	return nil
}

func parse() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// New 以显式参数构造配置，供库内嵌场景使用（不读文件）
func New(apiBaseURL, wsURL string) (*Config, error) {
	cfg := &Config{}
	cfg.API.BaseURL = apiBaseURL
	cfg.WS.URL = wsURL
	cfg.applyDefaults()

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
