package logger

import (
	"time"

	"go.uber.org/zap"
)

// Field type alias for convenience
type Field = zap.Field

// Common field constructors - re-exported from zap for convenience

// String constructs a field with the given key and value
func String(key string, val string) Field {
	return zap.String(key, val)
}

// Strings constructs a field with the given key and slice of strings
func Strings(key string, val []string) Field {
	return zap.Strings(key, val)
}

// Int constructs a field with the given key and value
func Int(key string, val int) Field {
	return zap.Int(key, val)
}

// Bool constructs a field with the given key and value
func Bool(key string, val bool) Field {
	return zap.Bool(key, val)
}

// Duration constructs a field with the given key and value
func Duration(key string, val time.Duration) Field {
	return zap.Duration(key, val)
}

// Error constructs a field that lazily stores err.Error() under the key "error"
func Error(err error) Field {
	return zap.Error(err)
}

// Any takes a key and an arbitrary value and chooses the best way to represent them
func Any(key string, val interface{}) Field {
	return zap.Any(key, val)
}

// Domain fields

// Component constructs a field for component name
func Component(name string) Field {
	return String("component", name)
}

// Operation constructs a field for operation name
func Operation(name string) Field {
	return String("operation", name)
}

// Session constructs a field for the push session id
func Session(id string) Field {
	return String("session_id", id)
}

// Repository constructs a field for repository name
func Repository(name string) Field {
	return String("repository", name)
}

// Ref constructs a field for a git ref name
func Ref(name string) Field {
	return String("ref", name)
}

// Revision constructs a field for a revision id
func Revision(rev string) Field {
	return String("revision", rev)
}

// Username constructs a field for the pushing identity's username
func Username(name string) Field {
	return String("username", name)
}

// Fingerprint constructs a field for a public key fingerprint
func Fingerprint(fp string) Field {
	return String("fingerprint", fp)
}

// Account constructs a field for the shared account name
func Account(name string) Field {
	return String("account", name)
}
