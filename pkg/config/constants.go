package config

// EnvPrefix scopes every environment variable consumed by the service.
const EnvPrefix = "VRB"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "VRB_APP_ENV"
	EnvPort     = "VRB_APP_PORT"
	EnvDBDSN    = "VRB_DB_DSN"
	EnvDBHost   = "VRB_DB_HOST"
	EnvDBUser   = "VRB_DB_USER"
	EnvDBName   = "VRB_DB_NAME"
	EnvRedisURL = "VRB_REDIS_URL"

	EnvTelegramBotToken    = "VRB_TELEGRAM_BOT_TOKEN"
	EnvTelegramManagerChat = "VRB_TELEGRAM_MANAGER_CHAT_ID"
	EnvTelegramGroupChat   = "VRB_TELEGRAM_GROUP_CHAT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
