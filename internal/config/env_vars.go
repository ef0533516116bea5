package config

type EnvVars struct {
	AppName     string `yaml:"app_name" env:"APP_NAME" env-default:"FindCourse"`
	Env         string `yaml:"env" env:"ENV" env-default:"DEV"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return orDefault(e.AppName, "FindCourse")
}

func (e EnvVars) GetEnv() string {
	return orDefault(e.Env, "DEV")
}

func (e EnvVars) GetLogLevel() string {
	return orDefault(e.LogLevel, "info")
}

// GetMetricsAddr is empty when the metrics endpoint is disabled.
func (e EnvVars) GetMetricsAddr() string {
	return e.MetricsAddr
}

func orDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
