package common

// Maximum lengths of various string input fields
const (
	MaxLenTitle    = 100
	MaxLenBody     = 2000
	MaxLenVideoURL = 2000
	MaxLenPasscode = 100
	MaxLenBoardID  = 50
)

// DefaultTitle is assigned to root posts submitted without a title
const DefaultTitle = "Untitled"

// DefaultBoards is the board list used, when none is configured. The first
// board is the default one.
var DefaultBoards = []string{"Random", "Confessions", "Faculty", "Campus Life"}

// IsTest can be overridden to not launch several infinite loops during tests
var IsTest bool
