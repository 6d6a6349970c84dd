// Package config stores and exports the configuration for server-side use and
// the public availability JSON struct, which includes a small subset of the
// server configuration.
package config

import (
	"encoding/json"
	"sync"

	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/util"
	"golang.org/x/crypto/bcrypt"
)

// Tripcode derivation modes
const (
	TripcodeHash   = "hash"
	TripcodeSecure = "secure"
)

var (
	// Ensures no reads happen, while the configuration is reloading
	globalMu sync.RWMutex

	// Contains currently loaded global server configuration
	global *Configs

	// JSON of client-accessible configuration
	clientJSON []byte

	// Hash of the global configs. Used for live reloading configuration on the
	// client.
	hash string

	// PasscodeCost is the bcrypt cost used for hashing the access passcode.
	// Overridable for faster tests.
	PasscodeCost = bcrypt.DefaultCost

	// Defaults contains the default server configuration values
	Defaults = Configs{
		Passcode:      "STUDENT2025",
		TripcodeMode:  TripcodeHash,
		Salt:          "LALALALALALALALALALALALALALALALALALALALA",
		JPEGQuality:   70,
		MaxWidth:      800,
		MaxHeight:     800,
		SessionExpiry: 30,
		Public: Public{
			Boards:        common.DefaultBoards,
			MaxDepth:      10,
			MaxUploadSize: 10,
			MaxLenTitle:   common.MaxLenTitle,
			MaxLenBody:    common.MaxLenBody,
		},
	}
)

// Configs stores the global runtime configuration. Can be hot-reloaded.
type Configs struct {
	Public       `yaml:",inline"`
	Passcode     string `json:"passcode,omitempty" yaml:"passcode"`
	PasscodeHash []byte `json:"-" yaml:"-"`
	TripcodeMode string `json:"tripcodeMode" yaml:"tripcodeMode"`
	Salt         string `json:"salt" yaml:"salt"`
	JPEGQuality  uint8  `json:"jpegQuality" yaml:"jpegQuality"`
	MaxWidth     uint16 `json:"maxWidth" yaml:"maxWidth"`
	MaxHeight    uint16 `json:"maxHeight" yaml:"maxHeight"`

	// In days
	SessionExpiry uint `json:"sessionExpiry" yaml:"sessionExpiry"`
}

// Public contains configurations exposeable through public availability APIs
type Public struct {
	Boards   []string `json:"boards" yaml:"boards"`
	MaxDepth int      `json:"maxDepth" yaml:"maxDepth"`

	// In MB
	MaxUploadSize uint `json:"maxUploadSize" yaml:"maxUploadSize"`
	MaxLenTitle   int  `json:"maxLenTitle" yaml:"maxLenTitle"`
	MaxLenBody    int  `json:"maxLenBody" yaml:"maxLenBody"`
}

// Get returns a pointer to the current server configuration struct. Callers
// should not modify this struct.
func Get() *Configs {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// Set sets the internal configuration struct. A plain text passcode is
// replaced by its bcrypt hash.
func Set(c Configs) error {
	if len(c.Boards) == 0 {
		c.Boards = common.DefaultBoards
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = Defaults.MaxDepth
	}
	switch c.TripcodeMode {
	case TripcodeHash, TripcodeSecure:
	default:
		c.TripcodeMode = TripcodeHash
	}
	if c.Passcode != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(c.Passcode), PasscodeCost)
		if err != nil {
			return util.WrapError("hashing passcode", err)
		}
		c.PasscodeHash = h
		c.Passcode = ""
	} else if len(c.PasscodeHash) == 0 {
		// Keep the current passcode on reloads without one
		if old := Get(); old != nil {
			c.PasscodeHash = old.PasscodeHash
		}
	}

	client, err := json.Marshal(c.Public)
	if err != nil {
		return err
	}
	h := util.HashBuffer(client)

	globalMu.Lock()
	clientJSON = client
	global = &c
	hash = h
	globalMu.Unlock()

	return nil
}

// GetClient returns public availability configuration JSON and a truncated
// configuration MD5 hash
func GetClient() ([]byte, string) {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return clientJSON, hash
}

// CheckPasscode returns, if the passed passcode matches the configured one
func CheckPasscode(passcode string) bool {
	conf := Get()
	if conf == nil || len(conf.PasscodeHash) == 0 {
		return false
	}
	err := bcrypt.CompareHashAndPassword(conf.PasscodeHash, []byte(passcode))
	return err == nil
}

// IsBoard returns whether the passed string is a configured board
func IsBoard(b string) bool {
	for _, id := range GetBoards() {
		if id == b {
			return true
		}
	}
	return false
}

// GetBoards returns the configured boards in display order
func GetBoards() []string {
	conf := Get()
	if conf == nil || len(conf.Boards) == 0 {
		return common.DefaultBoards
	}
	return conf.Boards
}

// Clear resets package state. Only use in tests.
func Clear() {
	globalMu.Lock()
	defer globalMu.Unlock()

	global = &Configs{}
	clientJSON = nil
	hash = ""
}
