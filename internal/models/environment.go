package models

import (
	"os"
	"os/user"
	"runtime"
)

// SchemaVersion is stamped on every session.
const SchemaVersion = "1.0"

// Environment is a snapshot of the machine and application being recorded.
type Environment struct {
	MachineName        string `json:"machineName"`
	OSVersion          string `json:"osVersion"`
	UserName           string `json:"userName"`
	ApplicationName    string `json:"applicationName"`
	ApplicationVersion string `json:"applicationVersion"`
}

// CaptureEnvironment reads the host details. Lookup failures leave the
// corresponding field empty.
func CaptureEnvironment(appName, appVersion string) Environment {
	env := Environment{
		OSVersion:          runtime.GOOS + "/" + runtime.GOARCH,
		ApplicationName:    appName,
		ApplicationVersion: appVersion,
	}
	if host, err := os.Hostname(); err == nil {
		env.MachineName = host
	}
	if u, err := user.Current(); err == nil {
		env.UserName = u.Username
	}
	return env
}
