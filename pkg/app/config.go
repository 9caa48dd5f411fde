package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/updrive-io/updrive/pkg/log"
)

const configFlagName = "config"

var cfgFile string

func addConfigFlag(fs *pflag.FlagSet) {
	fs.StringVarP(&cfgFile, configFlagName, "c", "", "Path to the configuration file.")
}

// bindConfig merges the config file, environment and flags into the options
// object, then watches the file and re-applies it on change.
func bindConfig(name string, fs *pflag.FlagSet, opts CliOptions) error {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(name)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/updrive")
	}
	v.SetEnvPrefix("UPDRIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// The config file is optional unless named explicitly.
		if cfgFile == "" && errors.As(err, &notFound) {
			return unmarshalOptions(v, opts)
		}
		return fmt.Errorf("read config file: %w", err)
	}
	log.Info("Loaded configuration file", "file", v.ConfigFileUsed())

	if err := unmarshalOptions(v, opts); err != nil {
		return err
	}

	v.OnConfigChange(func(in fsnotify.Event) {
		log.Info("Configuration file changed, reloading", "file", in.Name)
		if err := unmarshalOptions(v, opts); err != nil {
			log.Error(err, "Failed to apply reloaded configuration")
			return
		}
		if w, ok := opts.(WatchableOptions); ok {
			w.OnReload()
		}
	})
	v.WatchConfig()

	return nil
}

func unmarshalOptions(v *viper.Viper, opts CliOptions) error {
	if opts == nil {
		return nil
	}
	if err := v.Unmarshal(opts); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}
