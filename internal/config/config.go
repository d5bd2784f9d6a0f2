// Package config loads the environment defaults of the CLI and the JSON
// config file describing senders, receivers and subscriptions.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultSMTPPort is used when the sender sets no port.
const DefaultSMTPPort = 587

// ErrSourceNotObject is returned when the source property is not a JSON object.
var ErrSourceNotObject = errors.New("the source property parsed from config file is not an object")

// Defaults holds flag defaults taken from the environment.
type Defaults struct {
	Debug     bool   `env:"COMIK_DEBUG"      envDefault:"false"`
	Bark      string `env:"COMIK_BARK"`
	Cache     string `env:"COMIK_CACHE"      envDefault:"/var/cache/comik"`
	Repo      string `env:"COMIK_REPO"       envDefault:"/var/local/comik"`
	MarkStore string `env:"COMIK_MARK_STORE"`
}

// Builtin returns the defaults used when the environment sets nothing.
func Builtin() *Defaults {
	return &Defaults{Cache: "/var/cache/comik", Repo: "/var/local/comik"}
}

// LoadDefaults reads the optional dotenv files (".env" when none are given)
// and parses the environment. Variables already set are never overridden.
func LoadDefaults(files ...string) (*Defaults, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to load env file: %w", err)
	}

	d := &Defaults{}
	if err := env.Parse(d); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	return d, nil
}

// Sender is the mail account documents are sent from.
type Sender struct {
	Address  string `json:"address"`
	Host     string `json:"host"`
	Password string `json:"password"`
	Port     int    `json:"port,omitempty"`
}

// File is the JSON config file of one run.
type File struct {
	Sender    Sender   `json:"sender"`
	Receivers []string `json:"receivers"`
	// Notify is the push template; empty selects the built-in one.
	Notify string `json:"notify,omitempty"`
	// Source maps a source tag to that source's own subscription list.
	Source json.RawMessage `json:"source"`
}

// Read parses the config file at path.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if f.Sender.Port == 0 {
		f.Sender.Port = DefaultSMTPPort
	}
	return &f, nil
}

// Sources splits the source property by tag, leaving each value undecoded.
func (f *File) Sources() (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(f.Source)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrSourceNotObject
	}

	var sources map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &sources); err != nil {
		return nil, fmt.Errorf("failed to parse source property: %w", err)
	}
	return sources, nil
}
