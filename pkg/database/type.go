package database

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnsupportedDriver is returned when the database URL scheme does not
// match any supported engine.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

type Type uint8

const (
	TypeUnknown Type = iota
	TypeMySQL
	TypePostgreSQL
	TypeMSSQL
)

// DetectFromDatabaseURL detects the database type given a database URL.
func DetectFromDatabaseURL(dbURL string) (Type, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return TypeUnknown, fmt.Errorf("error parsing the database URL %q: %w", dbURL, err)
	}

	scheme := strings.ToLower(u.Scheme)

	switch scheme {
	case "mysql":
		return TypeMySQL, nil
	case "postgres", "postgresql":
		return TypePostgreSQL, nil
	case "sqlserver", "mssql":
		return TypeMSSQL, nil
	default:
		return TypeUnknown, fmt.Errorf("%w: %q", ErrUnsupportedDriver, scheme)
	}
}

// String returns the string representation of a Type.
func (t Type) String() string {
	switch t {
	case TypeMySQL:
		return "MySQL"
	case TypePostgreSQL:
		return "PostgreSQL"
	case TypeMSSQL:
		return "SQL Server"
	case TypeUnknown:
		fallthrough
	default:
		return "unknown"
	}
}
