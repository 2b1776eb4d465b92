package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Domain field helpers

func Component(name string) Field {
	return String("component", name)
}

func RunID(id string) Field {
	return String("run_id", id)
}

func Step(name string) Field {
	return String("step", name)
}

// Kind is the graph node kind, passed as its string form to keep this
// package free of graph imports.
func Kind(kind string) Field {
	return String("kind", kind)
}

func Key(key string) Field {
	return String("key", key)
}

func Indicator(value string) Field {
	return String("indicator", value)
}

func ObjectID(id string) Field {
	return String("object_id", id)
}

func ObjectType(t string) Field {
	return String("object_type", t)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}
