package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Twitter: TwitterConfig{
			APIURL:        "https://api.twitter.com/1.1/",
			UploadURL:     "https://upload.twitter.com/1.1/",
			TimeoutMs:     2000,
			SegmentSize:   4 << 20,
			MaxMediaBytes: 15 << 20,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        3000,
			WebhookPath: "/webhook/twitter",
		},
		Replies: RepliesConfig{
			Builtins:      true,
			Concurrency:   4,
			RateBurst:     10,
			RatePerMinute: 60,
		},
		Store: StoreConfig{
			Enabled: true,
			DBPath:  "~/.pufflebot/journal.db",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
