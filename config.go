package fdbridge

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	RuntimeEmbedded = "embedded"
	RuntimeExec     = "exec"

	DefaultChannelName = "inout"
)

// Config is the host configuration loaded from TOML.
type Config struct {
	Log         LogConfig         `toml:"log"`
	Redirect    RedirectConfig    `toml:"redirect"`
	Runtime     RuntimeConfig     `toml:"runtime"`
	Channel     ChannelConfig     `toml:"channel"`
	Descriptors map[string]string `toml:"descriptors" validate:"dive,keys,required,endkeys,required"`
}

type LogConfig struct {
	Level     string `toml:"level" validate:"omitempty,oneof=trace debug info warn warning error disabled off none"`
	Timestamp bool   `toml:"timestamp"`
	NoColor   bool   `toml:"no_color"`
	JSON      bool   `toml:"json"`
}

type RedirectConfig struct {
	Enabled   bool   `toml:"enabled"`
	Stdout    bool   `toml:"stdout"`
	Stderr    bool   `toml:"stderr"`
	Tag       string `toml:"tag" validate:"required"`
	ChunkSize int    `toml:"chunk_size" validate:"gte=64,lte=1048576"`
}

type RuntimeConfig struct {
	Mode string            `toml:"mode" validate:"oneof=embedded exec"`
	Path string            `toml:"path" validate:"required_if=Mode exec"`
	Args []string          `toml:"args"`
	Env  map[string]string `toml:"env"`
}

type ChannelConfig struct {
	Enabled bool   `toml:"enabled"`
	Name    string `toml:"name" validate:"required_if=Enabled true"`
}

// DefaultConfig returns the configuration used for keys a file leaves out.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:     "info",
			Timestamp: true,
		},
		Redirect: RedirectConfig{
			Enabled:   true,
			Stdout:    true,
			Stderr:    true,
			Tag:       LogTag,
			ChunkSize: DefaultChunkSize,
		},
		Runtime: RuntimeConfig{
			Mode: RuntimeEmbedded,
		},
		Channel: ChannelConfig{
			Name: DefaultChannelName,
		},
	}
}

// LoadConfig reads path over DefaultConfig and validates the result. Unknown
// keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("config parse failed (%s): unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// ValidateConfig checks field constraints.
func ValidateConfig(cfg Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
