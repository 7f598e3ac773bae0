package utils

const (
	// DefaultConfigPath is the directory searched for config.json
	DefaultConfigPath = "/etc/kdisk/"
	// DefaultHttpAddr is the listen address of kdisk serve
	DefaultHttpAddr = ":8089"
)
