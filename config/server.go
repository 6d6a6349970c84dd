package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	DriverMemory   = "memory"
	DriverBolt     = "bolt"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Configurations of this specific instance passed from config file.
// Immutable after loading.
var Server ServerConfigs

// Names of configuration files searched for, in order of precedence
var fileNames = [...]string{"config.json", "config.yaml", "config.yml"}

// ServerConfigs are configurations of this specific instance passed from the
// config file, environment or command line
type ServerConfigs struct {
	// Path of the loaded config file, if any
	Path string `json:"-" yaml:"-"`

	Database struct {
		Driver string `json:"driver" yaml:"driver"`
		URL    string `json:"url" yaml:"url"`
	} `json:"database" yaml:"database"`

	// Redis URL for session storage. Sessions are kept in memory, if empty.
	Redis string `json:"redis" yaml:"redis"`

	Server struct {
		ReverseProxied bool   `json:"reverseProxied" yaml:"reverseProxied"`
		Gzip           bool   `json:"gzip" yaml:"gzip"`
		Address        string `json:"address" yaml:"address"`
	} `json:"server" yaml:"server"`

	EmailErrors struct {
		Enabled  bool   `json:"enabled" yaml:"enabled"`
		Server   string `json:"server" yaml:"server"`
		Port     uint   `json:"port" yaml:"port"`
		Address  string `json:"address" yaml:"address"`
		Password string `json:"password" yaml:"password"`
	} `json:"emailErrors" yaml:"emailErrors"`
}

// File is the layout of the configuration file
type File struct {
	ServerConfigs `yaml:",inline"`
	Board         *Configs `json:"board" yaml:"board"`
}

// Load configs from a config file, .env file and the environment or defaults,
// if none present. Runtime configurations found in the file are applied with
// Set.
func (c *ServerConfigs) Load() (err error) {
	c.setDefaults()

	var f File
	f.ServerConfigs = *c
	path, err := findFile()
	if err != nil {
		return
	}
	if path != "" {
		err = ReadFile(path, &f)
		if err != nil {
			return
		}
		f.Path = path
	}
	*c = f.ServerConfigs

	// A missing .env file is not an error
	err = godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		return
	}
	err = nil

	board := Defaults
	if f.Board != nil {
		board = *f.Board
	}
	c.applyEnv(&board)
	return Set(board)
}

// ReadFile decodes a JSON or YAML configuration file into dst, depending on
// the file extension
func ReadFile(path string, dst *File) (err error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(buf, dst)
	default:
		return json.Unmarshal(buf, dst)
	}
}

// Walk up from the working directory to the module or system root looking
// for a config file. Returns an empty path, if none found.
func findFile() (string, error) {
	var prefix string
	for {
		for _, name := range fileNames {
			path := filepath.Join(prefix, name)
			_, err := os.Stat(path)
			switch {
			case err == nil:
				return path, nil
			case !os.IsNotExist(err):
				return "", err
			}
		}

		_, err := os.Stat(filepath.Join(prefix, "go.mod"))
		switch {
		case err == nil:
			return "", nil // Reached the project root dir
		case !os.IsNotExist(err):
			return "", err
		}
		abs, err := filepath.Abs(prefix)
		if err != nil {
			return "", err
		}
		if abs == "/" || abs == filepath.VolumeName(abs)+string(filepath.Separator) {
			return "", nil // Reached the system root dir
		}

		// Go up one dir
		prefix = filepath.Join("..", prefix)
	}
}

func (c *ServerConfigs) setDefaults() {
	c.Database.Driver = DriverBolt
	c.Database.URL = "blindspot.db"
	c.Server.Address = ":8000"
}

// Environment variables override file configuration
func (c *ServerConfigs) applyEnv(board *Configs) {
	str := func(key string, dst *string) {
		if v := os.Getenv("BLINDSPOT_" + key); v != "" {
			*dst = v
		}
	}
	str("ADDRESS", &c.Server.Address)
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_URL", &c.Database.URL)
	str("REDIS_URL", &c.Redis)
	str("PASSCODE", &board.Passcode)
	str("SALT", &board.Salt)
	str("TRIPCODE_MODE", &board.TripcodeMode)
	if v := os.Getenv("BLINDSPOT_GZIP"); v != "" {
		c.Server.Gzip, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("BLINDSPOT_REVERSE_PROXIED"); v != "" {
		c.Server.ReverseProxied, _ = strconv.ParseBool(v)
	}
}
