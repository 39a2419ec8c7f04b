package config

import (
	"os"
	"strconv"
	"strings"
)

// applyEnvOverrides copies set environment variables into cfg. It reports
// whether anything changed.
func applyEnvOverrides(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	changed := false

	setString := func(dst *string, value string) {
		if value == "" || *dst == value {
			return
		}
		*dst = value
		changed = true
	}
	setInt := func(dst *int, value string) {
		if value == "" {
			return
		}
		parsed, err := strconv.Atoi(value)
		if err != nil || *dst == parsed {
			return
		}
		*dst = parsed
		changed = true
	}
	setBool := func(dst *bool, value string) {
		if value == "" {
			return
		}
		parsed, err := strconv.ParseBool(value)
		if err != nil || *dst == parsed {
			return
		}
		*dst = parsed
		changed = true
	}
	env := func(keys ...string) string {
		for _, key := range keys {
			if v := strings.TrimSpace(os.Getenv(key)); v != "" {
				return v
			}
		}
		return ""
	}

	setString(&cfg.Twitter.ConsumerKey, env("TWITTER_CONSUMER_KEY"))
	setString(&cfg.Twitter.ConsumerSecret, env("TWITTER_CONSUMER_SECRET"))
	setString(&cfg.Twitter.AccessToken, env("TWITTER_BOT_ACCESS_TOKEN", "TWITTER_ACCESS_TOKEN"))
	setString(&cfg.Twitter.AccessTokenSecret, env("TWITTER_BOT_ACCESS_TOKEN_SECRET", "TWITTER_ACCESS_TOKEN_SECRET"))
	setString(&cfg.Twitter.BotUserID, env("TWITTER_BOT_USER_ID"))
	setString(&cfg.Twitter.APIURL, env("TWITTER_API_URL"))
	setString(&cfg.Twitter.UploadURL, env("TWITTER_UPLOAD_URL"))

	setString(&cfg.Server.Host, env("PUFFLEBOT_HOST"))
	setInt(&cfg.Server.Port, env("PORT", "PUFFLEBOT_PORT"))

	setString(&cfg.General.LogLevel, env("PUFFLEBOT_LOG_LEVEL"))
	setString(&cfg.General.LogFormat, env("PUFFLEBOT_LOG_FORMAT"))
	setString(&cfg.Store.DBPath, env("PUFFLEBOT_DB_PATH"))
	setBool(&cfg.Store.Enabled, env("PUFFLEBOT_STORE_ENABLED"))
	setBool(&cfg.Metrics.Enabled, env("PUFFLEBOT_METRICS_ENABLED"))
	setString(&cfg.Replies.RulesPath, env("PUFFLEBOT_RULES_PATH"))

	return changed
}
