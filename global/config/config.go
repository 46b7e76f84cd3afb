package config

import (
	"os"
		"strings"
	"time"

	"PPGateway/tools"
	"PPGateway/tools/errs"

	"gopkg.in/yaml.v3"
)

const (
	BusSourceNone  = "none"
	BusSourceNATS  = "nats"
	BusSourceKafka = "kafka"

	StoreDriverNone     = "none"
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

type AppConfig struct {
	NodeID   string         `yaml:"node_id"` // 节点ID
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	WS       WSConfig       `yaml:"ws"`
	Liveness LivenessConfig `yaml:"liveness"`
	Auth     AuthConfig     `yaml:"auth"`
	Bus      BusConfig      `yaml:"bus"`
	NATS     NATSConfig     `yaml:"nats"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Store    StoreConfig    `yaml:"store"`
	Presence PresenceConfig `yaml:"presence"`
	Nacos    NacosConfig    `yaml:"nacos"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug|info|warn|error
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"` // websocket 命名空间
}

type GRPCConfig struct {
	Addr string `yaml:"addr"` // 健康检查
}

type WSConfig struct {
	PingInterval  time.Duration `yaml:"ping_interval"`
	PingTimeout   time.Duration `yaml:"ping_timeout"`
	WriteWait     time.Duration `yaml:"write_wait"`
	SendQueue     int           `yaml:"send_queue"`
	MaxFrameBytes int64         `yaml:"max_frame_bytes"`
	// 允许的 Origin，空表示不校验
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LivenessConfig struct {
	Threshold time.Duration `yaml:"threshold"`
	Interval  time.Duration `yaml:"interval"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"` // 为空时不校验 token
	Alg       string `yaml:"alg"`
}

type BusConfig struct {
	Source string `yaml:"source"` // none|nats|kafka
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	Name          string `yaml:"name"`
	SubjectPrefix string `yaml:"subject_prefix"`
	JetStream     bool   `yaml:"jetstream"`
	Stream        string `yaml:"stream"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	Version     string   `yaml:"version"`
	TopicPrefix string   `yaml:"topic_prefix"`
	GroupPrefix string   `yaml:"group_prefix"` // 每个网关节点独立 group: <prefix><node_id>
}

type RedisConfig struct {
	Addr     string `yaml:"addr"` // 为空时不启用缓存与在线镜像
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StoreConfig struct {
	Driver      string        `yaml:"driver"` // none|postgres|mongo
	PostgresDSN string        `yaml:"postgres_dsn"`
	MongoURI    string        `yaml:"mongo_uri"`
	MongoDB     string        `yaml:"mongo_db"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

type PresenceConfig struct {
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        uint64 `yaml:"port"`
	Namespace   string `yaml:"namespace"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	DataID      string `yaml:"data_id"`
	Group       string `yaml:"group"`
	ServiceName string `yaml:"service_name"`
	Register    bool   `yaml:"register"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *AppConfig {
	return &AppConfig{
		NodeID: "gateway_01",
		Log:    LogConfig{Level: "debug"},
		HTTP:   HTTPConfig{Addr: ":8080", Path: "/message"},
		GRPC:   GRPCConfig{Addr: ":50052"},
		WS: WSConfig{
			PingInterval:  30 * time.Second,
			PingTimeout:   30 * time.Second,
			WriteWait:     10 * time.Second,
			SendQueue:     256,
			MaxFrameBytes: 100 << 20,
		},
		Liveness: LivenessConfig{Threshold: 5 * time.Minute, Interval: 60 * time.Second},
		Auth:     AuthConfig{Alg: "HS256"},
		Bus:      BusConfig{Source: BusSourceNone},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			Name:          "im-gateway",
			SubjectPrefix: "im.events.",
			Stream:        "IM_EVENTS",
		},
		Kafka: KafkaConfig{
			Brokers:     []string{"127.0.0.1:9092"},
			Version:     "2.1.0",
			TopicPrefix: "im.events.",
			GroupPrefix: "im-gateway-",
		},
		Store:    StoreConfig{Driver: StoreDriverNone, MongoDB: "im", CacheTTL: 60 * time.Second},
		Presence: PresenceConfig{KeyPrefix: "im:presence:", TTL: 6 * time.Minute},
		Nacos: NacosConfig{
			Host:        "127.0.0.1",
			Port:        8848,
			Namespace:   "public",
			DataID:      "im-gateway.yaml",
			Group:       "DEFAULT_GROUP",
			ServiceName: "im-gateway",
		},
	}
}

// Load reads defaults, then the YAML file at path (optional), then env overrides.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.WrapMsg(err, "read config", "path", path)
		}
		if err := cfg.Merge(b); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge overlays a YAML document onto cfg; keys absent from doc keep their value.
func (c *AppConfig) Merge(doc []byte) error {
	if len(strings.TrimSpace(string(doc))) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(doc, c); err != nil {
		return errs.ErrArgs.WrapMsg("parse config yaml", "err", err)
	}
	return nil
}

func (c *AppConfig) ApplyEnv() {
	c.NodeID = tools.GetEnv("GATEWAY_ID", c.NodeID)
	c.HTTP.Addr = tools.GetEnv("HTTP_ADDR", c.HTTP.Addr)
	c.GRPC.Addr = tools.GetEnv("GRPC_ADDR", c.GRPC.Addr)
	c.NATS.URL = tools.GetEnv("NATS_URL", c.NATS.URL)
	c.Redis.Addr = tools.GetEnv("REDIS_ADDR", c.Redis.Addr)
	c.Store.PostgresDSN = tools.GetEnv("DATABASE_URL", c.Store.PostgresDSN)
	c.Store.MongoURI = tools.GetEnv("MONGO_URI", c.Store.MongoURI)
	c.Auth.JWTSecret = tools.GetEnv("JWT_SECRET", c.Auth.JWTSecret)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	c.Redis.DB = tools.GetEnvInt("REDIS_DB", c.Redis.DB)
}

func (c *AppConfig) Validate() error {
	if c.NodeID == "" {
		return errs.ErrArgs.WrapMsg("node_id is empty")
	}
	if !strings.HasPrefix(c.HTTP.Path, "/") {
		return errs.ErrArgs.WrapMsg("http.path must start with /", "path", c.HTTP.Path)
	}
	if c.Liveness.Threshold <= 0 || c.Liveness.Interval <= 0 {
		return errs.ErrArgs.WrapMsg("liveness threshold and interval must be positive")
	}
	if c.WS.SendQueue <= 0 {
		return errs.ErrArgs.WrapMsg("ws.send_queue must be positive")
	}
	switch c.Bus.Source {
	case BusSourceNone, BusSourceNATS, BusSourceKafka:
	default:
		return errs.ErrArgs.WrapMsg("unknown bus.source", "source", c.Bus.Source)
	}
	switch c.Store.Driver {
	case StoreDriverNone, StoreDriverPostgres, StoreDriverMongo:
	default:
		return errs.ErrArgs.WrapMsg("unknown store.driver", "driver", c.Store.Driver)
	}
	return nil
}
