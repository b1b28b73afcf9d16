package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/exp/slices"
)

const (
	BackendHost        = "BACKEND_HOST"
	BackendPort        = "BACKEND_PORT"
	User               = "USER"
	Project            = "PROJECT"
	RequestRate        = "REQUEST_RATE"
	DeployTimeoutMin   = "DEPLOY_TIMEOUT_MIN"
	PollIntervalS      = "POLL_INTERVAL_S"
	GraphDB            = "GRAPHDB"
	GraphDBUser        = "GRAPHDB_USER"
	GraphDBPassword    = "GRAPHDB_PASSWORD"
	DaemonAddr         = "DAEMON_ADDR"
	DaemonProgressStep = "DAEMON_PROGRESS_STEP"
	LogLevel           = "LOG_LEVEL"

	EnvPrefix = "KLONET"
)

var configLog = logrus.WithField("component", "config")

// Session is everything a controller needs to reach one project.
type Session struct {
	BackendHost     string
	BackendPort     int
	User            string
	Project         string
	RequestRate     float64
	DeployTimeout   time.Duration
	PollInterval    time.Duration
	GraphDB         string
	GraphDBUser     string
	GraphDBPassword string
}

type Daemon struct {
	Addr         string
	ProgressStep float64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(BackendHost, "kb310server.f3322.net")
	v.SetDefault(BackendPort, 12313)
	v.SetDefault(User, "")
	v.SetDefault(Project, "")
	v.SetDefault(RequestRate, 0)
	v.SetDefault(DeployTimeoutMin, 30)
	v.SetDefault(PollIntervalS, 1)
	v.SetDefault(GraphDB, "")
	v.SetDefault(GraphDBUser, "")
	v.SetDefault(GraphDBPassword, "")
	v.SetDefault(DaemonAddr, "127.0.0.1:12313")
	v.SetDefault(DaemonProgressStep, 25)
	v.SetDefault(LogLevel, "info")
}

// New reads path, a .env file, over the defaults. A missing file is not an
// error. KLONET_ prefixed environment variables override both.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		configLog.Debug(err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v, nil
}

// WriteDefaults writes a .env file holding every default setting.
func WriteDefaults(path string) error {
	if _, err := os.Stat(path); err == nil {
		return &os.PathError{Op: "write", Path: path, Err: fs.ErrExist}
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("env")
	return v.WriteConfigAs(path)
}

func LoadSession(v *viper.Viper) Session {
	return Session{
		BackendHost:     v.GetString(BackendHost),
		BackendPort:     v.GetInt(BackendPort),
		User:            v.GetString(User),
		Project:         v.GetString(Project),
		RequestRate:     v.GetFloat64(RequestRate),
		DeployTimeout:   time.Duration(v.GetFloat64(DeployTimeoutMin) * float64(time.Minute)),
		PollInterval:    time.Duration(v.GetFloat64(PollIntervalS) * float64(time.Second)),
		GraphDB:         v.GetString(GraphDB),
		GraphDBUser:     v.GetString(GraphDBUser),
		GraphDBPassword: v.GetString(GraphDBPassword),
	}
}

func LoadDaemon(v *viper.Viper) Daemon {
	return Daemon{
		Addr:         v.GetString(DaemonAddr),
		ProgressStep: v.GetFloat64(DaemonProgressStep),
	}
}

// PrintVariables logs every setting in name order with passwords masked.
func PrintVariables(v *viper.Viper) {
	settings := v.AllSettings()
	sortedList := make([]string, 0, len(settings))
	for id := range settings {
		sortedList = append(sortedList, id)
	}
	slices.Sort(sortedList)

	for _, id := range sortedList {
		value := settings[id]
		if id == "graphdb_password" && value != "" {
			value = "****"
		}
		configLog.Debug(id, " ", value)
	}
}
