package config

import "time"

// Config holds client and dev backend configuration values.
type Config struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	SessionCookie  string        `mapstructure:"session_cookie" yaml:"session_cookie"`
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`
	DefaultRegion  string        `mapstructure:"default_region" yaml:"default_region"`
	PhoneNumberID  string        `mapstructure:"phone_number_id" yaml:"phone_number_id"`
	Identity       string        `mapstructure:"identity" yaml:"identity"`
	StaleTime      time.Duration `mapstructure:"stale_time" yaml:"stale_time"`
	QueryRetry     int           `mapstructure:"query_retry" yaml:"query_retry"`
	PageSize       int           `mapstructure:"page_size" yaml:"page_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MicOnConnect   bool          `mapstructure:"mic_on_connect" yaml:"mic_on_connect"`

	DevServer DevServer `mapstructure:"devserver" yaml:"devserver"`
}

// DevServer configures the local development backend.
type DevServer struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LiveKitURL        string        `mapstructure:"livekit_url" yaml:"livekit_url"`
	LiveKitAPIKey     string        `mapstructure:"livekit_api_key" yaml:"livekit_api_key"`
	LiveKitAPISecret  string        `mapstructure:"livekit_api_secret" yaml:"livekit_api_secret"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	SessionTTL        time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
	InitialBalance    int64         `mapstructure:"initial_balance" yaml:"initial_balance"`
	CallCost          int64         `mapstructure:"call_cost" yaml:"call_cost"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DialsPerMinute    int           `mapstructure:"dials_per_minute" yaml:"dials_per_minute"`
	StreamPoll        time.Duration `mapstructure:"stream_poll" yaml:"stream_poll"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		BaseURL:        "http://localhost:8080",
		LogLevel:       "info",
		DefaultRegion:  "US",
		StaleTime:      30 * time.Second,
		QueryRetry:     1,
		PageSize:       25,
		RequestTimeout: 15 * time.Second,
		DevServer: DevServer{
			Addr:              ":8080",
			DatabasePath:      "calldesk.db",
			LiveKitURL:        "ws://localhost:7880",
			LiveKitAPIKey:     "devkey",
			LiveKitAPISecret:  "secret",
			JWTSecret:         "change-me",
			SessionTTL:        24 * time.Hour,
			InitialBalance:    10,
			CallCost:          1,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			DialsPerMinute:    10,
			StreamPoll:        time.Second,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.BaseURL != "" {
		c.BaseURL = other.BaseURL
	}
	if other.SessionCookie != "" {
		c.SessionCookie = other.SessionCookie
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DefaultRegion != "" {
		c.DefaultRegion = other.DefaultRegion
	}
	if other.PhoneNumberID != "" {
		c.PhoneNumberID = other.PhoneNumberID
	}
	if other.Identity != "" {
		c.Identity = other.Identity
	}
	if other.StaleTime != 0 {
		c.StaleTime = other.StaleTime
	}
	if other.QueryRetry != 0 {
		c.QueryRetry = other.QueryRetry
	}
	if other.PageSize != 0 {
		c.PageSize = other.PageSize
	}
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.MicOnConnect {
		c.MicOnConnect = true
	}
	c.DevServer.UpdateFrom(other.DevServer)
}

// UpdateFrom overwrites non-zero values from other into receiver.
func (d *DevServer) UpdateFrom(other DevServer) {
	if other.Addr != "" {
		d.Addr = other.Addr
	}
	if other.DatabasePath != "" {
		d.DatabasePath = other.DatabasePath
	}
	if other.LiveKitURL != "" {
		d.LiveKitURL = other.LiveKitURL
	}
	if other.LiveKitAPIKey != "" {
		d.LiveKitAPIKey = other.LiveKitAPIKey
	}
	if other.LiveKitAPISecret != "" {
		d.LiveKitAPISecret = other.LiveKitAPISecret
	}
	if other.JWTSecret != "" {
		d.JWTSecret = other.JWTSecret
	}
	if other.SessionTTL != 0 {
		d.SessionTTL = other.SessionTTL
	}
	if other.InitialBalance != 0 {
		d.InitialBalance = other.InitialBalance
	}
	if other.CallCost != 0 {
		d.CallCost = other.CallCost
	}
	if other.ReadHeaderTimeout != 0 {
		d.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		d.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DialsPerMinute != 0 {
		d.DialsPerMinute = other.DialsPerMinute
	}
	if other.StreamPoll != 0 {
		d.StreamPoll = other.StreamPoll
	}
}
