package logger

import (
	"fmt"
	"os"
	"runtime"
)

type Config struct {
	Level      Level             `json:"level"       yaml:"level"`
	Format     string            `json:"format"      yaml:"format"` // json, text, console
	Output     string            `json:"output"      yaml:"output"` // stdout, stderr, file
	FilePath   string            `json:"file_path"   yaml:"file_path"`
	MaxSize    int               `json:"max_size"    yaml:"max_size"` // MB
	MaxBackups int               `json:"max_backups" yaml:"max_backups"`
	MaxAge     int               `json:"max_age"     yaml:"max_age"` // days
	Compress   bool              `json:"compress"    yaml:"compress"`
	Fields     map[string]string `json:"fields"      yaml:"fields"` // static fields for k8s/docker
}

// envFields maps environment variables onto the static field they populate.
var envFields = map[string]string{
	"KUBERNETES_NAMESPACE":    "k8s_namespace",
	"KUBERNETES_POD_NAME":     "k8s_pod",
	"KUBERNETES_NODE_NAME":    "k8s_node",
	"KUBERNETES_SERVICE_NAME": "k8s_service",
	"HOSTNAME":                "container_id",
	"DOCKER_IMAGE":            "docker_image",
	"APP_NAME":                "app_name",
	"APP_VERSION":             "app_version",
	"APP_ENV":                 "environment",
}

func GetDefaultFields() Fields {
	hostname, _ := os.Hostname()

	fields := Fields{
		"hostname":   hostname,
		"pid":        os.Getpid(),
		"go_version": runtime.Version(),
	}
	for env, field := range envFields {
		if v := os.Getenv(env); v != "" {
			fields[field] = v
		}
	}
	return fields
}

func NewDefaultConfig() *Config {
	config := &Config{
		Level:      LevelInfo,
		Format:     "console",
		Output:     "stdout",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
		Fields:     make(map[string]string),
	}

	for k, v := range GetDefaultFields() {
		config.Fields[k] = fmt.Sprint(v)
	}

	return config
}
