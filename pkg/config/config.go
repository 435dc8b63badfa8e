package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Telegram     TelegramConfig
	TPay         TPayConfig
	Cdek         CdekConfig
	RussianPost  RussianPostConfig
	Shop         ShopConfig
	Order        OrderConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VRB_APP_ENV" required:"true"`
	Port         string `envconfig:"VRB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VRB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VRB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VRB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"VRB_DB_DSN"`
	Driver string `envconfig:"VRB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VRB_DB_HOST"`
	LegacyPort     int    `envconfig:"VRB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VRB_DB_USER"`
	LegacyPassword string `envconfig:"VRB_DB_PASSWORD"`
	LegacyName     string `envconfig:"VRB_DB_NAME"`
	LegacySSLMode  string `envconfig:"VRB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VRB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VRB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VRB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VRB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VRB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VRB_REDIS_ADDR"`
	Password     string        `envconfig:"VRB_REDIS_PASSWORD"`
	DB           int           `envconfig:"VRB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VRB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VRB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VRB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VRB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VRB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"VRB_AUTO_MIGRATE" default:"false"`
}

type TelegramConfig struct {
	BotToken     string        `envconfig:"VRB_TELEGRAM_BOT_TOKEN" required:"true"`
	APIBaseURL   string        `envconfig:"VRB_TELEGRAM_API_BASE_URL" default:"https://api.telegram.org"`
	PollTimeout  time.Duration `envconfig:"VRB_TELEGRAM_POLL_TIMEOUT" default:"30s"`
	ManagerChat  int64         `envconfig:"VRB_TELEGRAM_MANAGER_CHAT_ID" required:"true"`
	GroupChat    int64         `envconfig:"VRB_TELEGRAM_GROUP_CHAT_ID" required:"true"`
	MailHandler  int64         `envconfig:"VRB_TELEGRAM_MAIL_HANDLER_CHAT_ID"`
	DisablePolls bool          `envconfig:"VRB_TELEGRAM_DISABLE_POLLING" default:"false"`
}

type TPayConfig struct {
	BaseURL     string `envconfig:"VRB_TPAY_BASE_URL" default:"https://securepay.tinkoff.ru/v2"`
	TerminalKey string `envconfig:"VRB_TPAY_TERMINAL_KEY"`
	Password    string `envconfig:"VRB_TPAY_PASSWORD"`
}

type CdekConfig struct {
	BaseURL      string `envconfig:"VRB_CDEK_BASE_URL" default:"https://api.cdek.ru/v2"`
	Account      string `envconfig:"VRB_CDEK_ACCOUNT"`
	SecurePass   string `envconfig:"VRB_CDEK_SECURE_PASSWORD"`
	FromCityCode int    `envconfig:"VRB_CDEK_FROM_CITY_CODE" default:"44"`
	ShipmentCode string `envconfig:"VRB_CDEK_SHIPMENT_POINT"`
}

type RussianPostConfig struct {
	BaseURL     string `envconfig:"VRB_POST_BASE_URL" default:"https://otpravka-api.pochta.ru"`
	AccessToken string `envconfig:"VRB_POST_ACCESS_TOKEN"`
	UserAuth    string `envconfig:"VRB_POST_USER_AUTHORIZATION"`
	FromIndex   string `envconfig:"VRB_POST_FROM_INDEX"`
}

type ShopConfig struct {
	// Requisites is the payment-instructions text shown to buyers next to
	// the card number for manual transfers.
	Requisites    string `envconfig:"VRB_SHOP_REQUISITES"`
	CRMBaseURL    string `envconfig:"VRB_SHOP_CRM_BASE_URL"`
	SupportHandle string `envconfig:"VRB_SHOP_SUPPORT_HANDLE" default:"@vorobei_support"`
}

type OrderConfig struct {
	PaymentWindow     time.Duration `envconfig:"VRB_ORDER_PAYMENT_WINDOW" default:"90m"`
	TrackingAttempts  int           `envconfig:"VRB_ORDER_TRACKING_ATTEMPTS" default:"8"`
	TrackingDelay     time.Duration `envconfig:"VRB_ORDER_TRACKING_DELAY" default:"2500ms"`
	BarcodeAttempts   int           `envconfig:"VRB_ORDER_BARCODE_ATTEMPTS" default:"10"`
	BarcodeDelay      time.Duration `envconfig:"VRB_ORDER_BARCODE_DELAY" default:"2s"`
	FreeDeliveryAbove int           `envconfig:"VRB_ORDER_FREE_DELIVERY_ABOVE" default:"13000"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"VRB_CRON_INTERVAL" default:"5m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
