/*
   Copyright @ 2021 bocloud <fushaosong@beyondcent.com>.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package configuration

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/carina-io/kdisk/utils"
	"github.com/carina-io/kdisk/utils/log"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "json"

	minProgressInterval = 100 * time.Millisecond
)

var (
	mu                 sync.RWMutex
	configModifyNotice []chan<- struct{}
	GlobalConfig       *viper.Viper
	kdiskConfig        = defaultConfig()
)

var opt = viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToSliceHookFunc(","),
))

var logLevelRegexp = regexp.MustCompile("(?i)^(debug|info|warn|error)?$")

// Config is the content of /etc/kdisk/config.json
type Config struct {
	// BusAddress of the D-Bus daemon hosting UDisks2, empty for the system bus
	BusAddress string `json:"busAddress"`
	// FormatTimeout bounds a whole unmount+format run, 0 waits forever
	FormatTimeout time.Duration `json:"formatTimeout"`
	// TaskRetention is how long kdisk serve remembers a finished format
	TaskRetention time.Duration `json:"taskRetention"`
	// ProgressInterval is the polling period of job progress
	ProgressInterval time.Duration `json:"progressInterval"`
	LogLevel         string        `json:"logLevel"`
	HttpAddr         string        `json:"httpAddr"`
}

func defaultConfig() Config {
	return Config{
		BusAddress:       "",
		FormatTimeout:    0,
		TaskRetention:    30 * time.Minute,
		ProgressInterval: time.Second,
		LogLevel:         "info",
		HttpAddr:         utils.DefaultHttpAddr,
	}
}

func setDefaults(v *viper.Viper) {
	d := defaultConfig()
	v.SetDefault("busAddress", d.BusAddress)
	v.SetDefault("formatTimeout", d.FormatTimeout)
	v.SetDefault("taskRetention", d.TaskRetention)
	v.SetDefault("progressInterval", d.ProgressInterval)
	v.SetDefault("logLevel", d.LogLevel)
	v.SetDefault("httpAddr", d.HttpAddr)
}

// Load reads the configuration file, a missing file leaves the defaults in place.
// An empty path means /etc/kdisk/config.json.
func Load(path string) error {
	if path == "" {
		path = filepath.Join(utils.DefaultConfigPath, configName+"."+configType)
	}
	log.Debugf("Loading global configuration %s ...", path)

	v := viper.New()
	setDefaults(v)
	v.SetConfigType(configType)
	if utils.FileExists(path) {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read the configuration %s: %w", path, err)
		}
	} else {
		log.Debugf("configuration %s not found, using defaults", path)
	}

	c, err := decode(v)
	if err != nil {
		return err
	}

	mu.Lock()
	GlobalConfig = v
	kdiskConfig = c
	mu.Unlock()
	log.SetLevel(c.LogLevel)
	return nil
}

func decode(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c, opt); err != nil {
		return c, fmt.Errorf("failed to unmarshal the configuration: %w", err)
	}
	if err := validate(c); err != nil {
		return c, fmt.Errorf("failed to validate the configuration: %w", err)
	}
	return c, nil
}

// Watch reloads the file on change and notifies registered listeners.
// Nothing is watched when Load did not find a file.
func Watch() {
	mu.RLock()
	v := GlobalConfig
	mu.RUnlock()
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(event fsnotify.Event) {
		log.Infof("Detect config change: %s", event.String())
		c, err := decode(v)
		if err != nil {
			log.Errorf("%s, ignore this change", err)
			return
		}
		mu.Lock()
		kdiskConfig = c
		listeners := configModifyNotice
		mu.Unlock()
		log.SetLevel(c.LogLevel)

		for _, ch := range listeners {
			log.Info("Generates the configuration change event")
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	})
	v.WatchConfig()
}

// RegisterListenerChan is signalled after every accepted reload.
// Sends never block, a buffered channel of size 1 is enough.
func RegisterListenerChan(c chan<- struct{}) {
	mu.Lock()
	defer mu.Unlock()
	configModifyNotice = append(configModifyNotice, c)
}

func validate(c Config) error {
	if c.FormatTimeout < 0 {
		return fmt.Errorf("formatTimeout must not be negative: %s", c.FormatTimeout)
	}
	if c.TaskRetention < 0 {
		return fmt.Errorf("taskRetention must not be negative: %s", c.TaskRetention)
	}
	if c.ProgressInterval < minProgressInterval {
		return fmt.Errorf("progressInterval must be at least %s: %s", minProgressInterval, c.ProgressInterval)
	}
	if !logLevelRegexp.MatchString(c.LogLevel) {
		return fmt.Errorf("logLevel must be one of debug, info, warn, error: %s", c.LogLevel)
	}
	return nil
}

// Current returns a copy of the active configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return kdiskConfig
}

func BusAddress() string {
	return Current().BusAddress
}

// FormatTimeout 0 means no timeout
func FormatTimeout() time.Duration {
	return Current().FormatTimeout
}

func TaskRetention() time.Duration {
	return Current().TaskRetention
}

func ProgressInterval() time.Duration {
	return Current().ProgressInterval
}

func HttpAddr() string {
	return Current().HttpAddr
}
