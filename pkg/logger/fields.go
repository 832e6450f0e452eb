package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// Field is one structured key/value. AddTo writes it to a zerolog event;
// GetKeyValue feeds the collector.
type Field interface {
	AddTo(event *zerolog.Event)
	GetKeyValue() (string, interface{})
}

type StringField struct {
	Key   string
	Value string
}

func (f StringField) AddTo(e *zerolog.Event)             { e.Str(f.Key, f.Value) }
func (f StringField) GetKeyValue() (string, interface{}) { return f.Key, f.Value }

type StringsField struct {
	Key   string
	Value []string
}

func (f StringsField) AddTo(e *zerolog.Event)             { e.Strs(f.Key, f.Value) }
func (f StringsField) GetKeyValue() (string, interface{}) { return f.Key, f.Value }

type Int64Field struct {
	Key   string
	Value int64
}

func (f Int64Field) AddTo(e *zerolog.Event)             { e.Int64(f.Key, f.Value) }
func (f Int64Field) GetKeyValue() (string, interface{}) { return f.Key, f.Value }

type Float64Field struct {
	Key   string
	Value float64
}

func (f Float64Field) AddTo(e *zerolog.Event)             { e.Float64(f.Key, f.Value) }
func (f Float64Field) GetKeyValue() (string, interface{}) { return f.Key, f.Value }

type BoolField struct {
	Key   string
	Value bool
}

func (f BoolField) AddTo(e *zerolog.Event)             { e.Bool(f.Key, f.Value) }
func (f BoolField) GetKeyValue() (string, interface{}) { return f.Key, f.Value }

// DurationField is logged in milliseconds.
type DurationField struct {
	Key   string
	Value time.Duration
}

func (f DurationField) AddTo(e *zerolog.Event) { e.Int64(f.Key, f.Value.Milliseconds()) }
func (f DurationField) GetKeyValue() (string, interface{}) {
	return f.Key, f.Value.Milliseconds()
}

// ErrorField always logs under "error". A nil error is written as null.
type ErrorField struct {
	Value error
}

func (f ErrorField) AddTo(e *zerolog.Event) { e.AnErr(zerolog.ErrorFieldName, f.Value) }
func (f ErrorField) GetKeyValue() (string, interface{}) {
	if f.Value == nil {
		return zerolog.ErrorFieldName, nil
	}
	return zerolog.ErrorFieldName, f.Value.Error()
}

type AnyField struct {
	Key   string
	Value interface{}
}

func (f AnyField) AddTo(e *zerolog.Event)             { e.Interface(f.Key, f.Value) }
func (f AnyField) GetKeyValue() (string, interface{}) { return f.Key, f.Value }

func String(key, value string) Field { return StringField{Key: key, Value: value} }

func Strings(key string, value []string) Field { return StringsField{Key: key, Value: value} }

func Int(key string, value int) Field { return Int64Field{Key: key, Value: int64(value)} }

func Float64(key string, value float64) Field { return Float64Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return BoolField{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field { return DurationField{Key: key, Value: value} }

func Error(err error) Field { return ErrorField{Value: err} }

func Any(key string, value interface{}) Field { return AnyField{Key: key, Value: value} }
