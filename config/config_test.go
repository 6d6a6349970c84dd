package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blindspot/blindspot/common"
	. "github.com/blindspot/blindspot/test"
	"github.com/blindspot/blindspot/util"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	PasscodeCost = bcrypt.MinCost
}

func TestSetGet(t *testing.T) {
	Clear()
	conf := Configs{
		Public: Public{
			Boards:   []string{"a", "b"},
			MaxDepth: 4,
		},
		TripcodeMode: TripcodeSecure,
	}

	if err := Set(conf); err != nil {
		t.Fatal(err)
	}
	AssertDeepEquals(t, Get(), &conf)

	json, hash := GetClient()
	if json == nil {
		t.Fatal("client json not set")
	}
	if hash == "" {
		t.Fatal("hash not set")
	}
}

func TestSetNormalization(t *testing.T) {
	Clear()
	if err := Set(Configs{TripcodeMode: "bogus"}); err != nil {
		t.Fatal(err)
	}

	conf := Get()
	AssertDeepEquals(t, conf.Boards, common.DefaultBoards)
	AssertDeepEquals(t, conf.MaxDepth, Defaults.MaxDepth)
	AssertDeepEquals(t, conf.TripcodeMode, TripcodeHash)
}

func TestPasscode(t *testing.T) {
	Clear()
	if CheckPasscode("") {
		t.Fatal("empty config accepted passcode")
	}

	conf := Defaults
	conf.Passcode = "hunter2"
	if err := Set(conf); err != nil {
		t.Fatal(err)
	}
	if Get().Passcode != "" {
		t.Fatal("plain text passcode retained")
	}

	cases := [...]struct {
		name, in string
		ok       bool
	}{
		{"correct", "hunter2", true},
		{"wrong", "hunter3", false},
		{"empty", "", false},
		{"case sensitive", "HUNTER2", false},
	}
	for i := range cases {
		c := cases[i]
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			AssertDeepEquals(t, CheckPasscode(c.in), c.ok)
		})
	}
}

func TestPasscodeRetainedOnReload(t *testing.T) {
	Clear()
	conf := Defaults
	conf.Passcode = "hunter2"
	if err := Set(conf); err != nil {
		t.Fatal(err)
	}

	conf.Passcode = ""
	conf.MaxDepth = 3
	if err := Set(conf); err != nil {
		t.Fatal(err)
	}
	if !CheckPasscode("hunter2") {
		t.Fatal("passcode lost")
	}
	AssertDeepEquals(t, Get().MaxDepth, 3)
}

func TestIsBoard(t *testing.T) {
	Clear()
	if err := Set(Defaults); err != nil {
		t.Fatal(err)
	}

	AssertDeepEquals(t, GetBoards(), common.DefaultBoards)
	if !IsBoard("Confessions") {
		t.Fatal("configured board not recognized")
	}
	if IsBoard("Nonexistent") {
		t.Fatal("unknown board recognized")
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	cases := [...]struct {
		name, file, body string
	}{
		{
			name: "json",
			file: "config.json",
			body: `{"database":{"driver":"sqlite","url":"x.db"},` +
				`"board":{"boards":["x","y"],"maxDepth":3}}`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			body: "database:\n  driver: sqlite\n  url: x.db\n" +
				"board:\n  boards: [x, y]\n  maxDepth: 3\n",
		},
	}

	for i := range cases {
		c := cases[i]
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(dir, c.file)
			err := os.WriteFile(path, []byte(c.body), 0600)
			if err != nil {
				t.Fatal(err)
			}

			var f File
			if err := ReadFile(path, &f); err != nil {
				t.Fatal(err)
			}
			AssertDeepEquals(t, f.Database.Driver, DriverSQLite)
			AssertDeepEquals(t, f.Database.URL, "x.db")
			if f.Board == nil {
				t.Fatal("board configs not read")
			}
			AssertDeepEquals(t, f.Board.Boards, []string{"x", "y"})
			AssertDeepEquals(t, f.Board.MaxDepth, 3)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BLINDSPOT_ADDRESS", ":9999")
	t.Setenv("BLINDSPOT_DB_DRIVER", DriverMemory)
	t.Setenv("BLINDSPOT_GZIP", "true")
	t.Setenv("BLINDSPOT_TRIPCODE_MODE", TripcodeSecure)

	var (
		c     ServerConfigs
		board = Defaults
	)
	c.setDefaults()
	c.applyEnv(&board)

	AssertDeepEquals(t, c.Server.Address, ":9999")
	AssertDeepEquals(t, c.Database.Driver, DriverMemory)
	AssertDeepEquals(t, c.Server.Gzip, true)
	AssertDeepEquals(t, board.TripcodeMode, TripcodeSecure)
}

func TestWatch(t *testing.T) {
	Clear()
	defer util.ClearHooks()

	path := filepath.Join(t.TempDir(), "config.json")
	write := func(depth string) {
		t.Helper()
		err := os.WriteFile(path,
			[]byte(`{"board":{"maxDepth":`+depth+`}}`), 0600)
		if err != nil {
			t.Fatal(err)
		}
	}
	write("5")

	reloaded := make(chan struct{}, 8)
	util.Hook(util.ConfigReloaded, func() error {
		reloaded <- struct{}{}
		return nil
	})

	stop, err := Watch(path)
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	write("7")
	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("configuration not reloaded")
	}
	AssertDeepEquals(t, Get().MaxDepth, 7)
}
