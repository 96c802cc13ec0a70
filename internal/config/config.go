// Package config loads build settings from an optional YAML file.
//
// Every setting has a command line flag; the file exists so that a
// project can pin its board, release and keys in version control
// instead of repeating them on every invocation. Flags override file
// values, file values override defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Rootfs holds settings for the root filesystem build.
type Rootfs struct {
	Board    string `mapstructure:"board"`
	Release  string `mapstructure:"release"`
	Mirror   string `mapstructure:"mirror"`
	Hostname string `mapstructure:"hostname"`
	SSHKey   string `mapstructure:"ssh-key"`
	Password string `mapstructure:"password"`
}

// Image holds settings for the disk image build.
type Image struct {
	BootSize string `mapstructure:"boot-size"`
	Compress bool   `mapstructure:"compress"`
}

type Config struct {
	Rootfs Rootfs `mapstructure:"rootfs"`
	Image  Image  `mapstructure:"image"`
}

// Load reads the config file at path, or just the defaults when path is
// empty. Settings can also come from the environment as MKROOT_*
// variables (MKROOT_ROOTFS_BOARD, MKROOT_IMAGE_BOOT_SIZE, ...).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("rootfs.board", "raspberrypi2")
	v.SetDefault("rootfs.release", "bookworm")
	v.SetDefault("rootfs.mirror", "http://deb.debian.org/debian")
	v.SetDefault("rootfs.hostname", "")
	v.SetDefault("rootfs.ssh-key", "")
	v.SetDefault("rootfs.password", "")
	v.SetDefault("image.boot-size", "100MiB")
	v.SetDefault("image.compress", false)

	v.SetEnvPrefix("MKROOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(path)
		err := v.ReadInConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var c Config
	err := v.UnmarshalExact(&c)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &c, nil
}
