/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package logger is the structured logging sink shared by the event loop,
// the socket backends and the DTLS session layer.
//
// Nothing above Info fires on the happy path: state transitions log at
// Debug or Trace, mapped failures at Warning or Error. The sink is logrus;
// the hclog adapter in hclog.go lets any embedded library that expects a
// hashicorp logger share the same output.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields carries the structured key/value pairs attached to one entry.
type Fields map[string]interface{}

// Logger is the contract every package of this module logs through.
type Logger interface {
	// SetLevel changes the minimum severity emitted from now on.
	SetLevel(lvl Level)

	// GetLevel reports the current minimum severity.
	GetLevel() Level

	// SetFields merges fields into every subsequent entry of this logger.
	SetFields(fields Fields)

	Trace(msg string, fields Fields)
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warning(msg string, fields Fields)
	Error(msg string, fields Fields)

	// ErrorIf logs err at Error level when non-nil and reports whether it
	// logged, letting call sites collapse the `if err != nil` dance.
	ErrorIf(err error, msg string, fields Fields) bool
}

type lgr struct {
	mu    sync.Mutex
	lvl   Level
	base  Fields
	sink  *logrus.Logger
	entry *logrus.Entry
}

// New builds a Logger writing to out (os.Stderr when nil) at lvl.
func New(lvl Level, out io.Writer) Logger {
	if out == nil {
		out = os.Stderr
	}

	s := logrus.New()
	s.SetOutput(out)
	s.SetLevel(lvl.Logrus())
	s.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	return &lgr{
		lvl:   lvl,
		base:  Fields{},
		sink:  s,
		entry: logrus.NewEntry(s),
	}
}

func (l *lgr) SetLevel(lvl Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lvl = lvl
	l.sink.SetLevel(lvl.Logrus())
}

func (l *lgr) GetLevel() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lvl
}

func (l *lgr) SetFields(fields Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range fields {
		l.base[k] = v
	}
	l.entry = l.sink.WithFields(logrus.Fields(l.base))
}

func (l *lgr) log(lvl Level, msg string, fields Fields) {
	l.mu.Lock()
	e := l.entry
	l.mu.Unlock()

	if len(fields) > 0 {
		e = e.WithFields(logrus.Fields(fields))
	}
	e.Log(lvl.Logrus(), msg)
}

func (l *lgr) Trace(msg string, fields Fields)   { l.log(TraceLevel, msg, fields) }
func (l *lgr) Debug(msg string, fields Fields)   { l.log(DebugLevel, msg, fields) }
func (l *lgr) Info(msg string, fields Fields)    { l.log(InfoLevel, msg, fields) }
func (l *lgr) Warning(msg string, fields Fields) { l.log(WarnLevel, msg, fields) }
func (l *lgr) Error(msg string, fields Fields)   { l.log(ErrorLevel, msg, fields) }

func (l *lgr) ErrorIf(err error, msg string, fields Fields) bool {
	if err == nil {
		return false
	}
	if fields == nil {
		fields = Fields{}
	}
	fields["error"] = err.Error()
	l.log(ErrorLevel, msg, fields)
	return true
}

// Nil returns a Logger that drops everything; used by tests and as the
// default when a component is built without an explicit logger.
func Nil() Logger {
	return New(NilLevel, io.Discard)
}
