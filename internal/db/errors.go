package db

import "errors"

var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrIndexExists   = errors.New("db: index already exists")
	ErrInvalidQuery  = errors.New("db: invalid query")
)

// Redis commands, recorded in Error.Op.
const (
	OpPing        = "PING"
	OpCreateIndex = "FT.CREATE"
	OpIndexInfo   = "FT.INFO"
	OpSearch      = "FT.SEARCH"
	OpHSet        = "HSET"
	OpHGetAll     = "HGETALL"
	OpDel         = "DEL"
	OpExists      = "EXISTS"
	OpGet         = "GET"
	OpSet         = "SET"
	OpEval        = "EVAL"
	OpIncrBy      = "INCRBY"
	OpExpire      = "EXPIRE"
)

// Error is a backend failure tagged with the command that produced it.
// It unwraps to the underlying rueidis error.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "db: " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// OpOf returns the command of the first *Error in err's chain, or "".
func OpOf(err error) string {
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr.Op
	}
	return ""
}
