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

package logger

import (
	"io"
	"log"

	"github.com/hashicorp/go-hclog"
)

const hclogArgsField = "hclog.args"

type _hclog struct {
	l    Logger
	name string
}

// NewHCLog wraps l as a hclog.Logger so libraries carrying a hashicorp
// logger dependency share the module's sink.
func NewHCLog(l Logger) hclog.Logger {
	return &_hclog{l: l}
}

func (h *_hclog) fields(args []interface{}) Fields {
	if len(args) == 0 {
		return nil
	}
	return Fields{hclogArgsField: args}
}

func (h *_hclog) Log(level hclog.Level, msg string, args ...interface{}) {
	switch level {
	case hclog.Off, hclog.NoLevel:
		return
	case hclog.Trace:
		h.l.Trace(msg, h.fields(args))
	case hclog.Debug:
		h.l.Debug(msg, h.fields(args))
	case hclog.Info:
		h.l.Info(msg, h.fields(args))
	case hclog.Warn:
		h.l.Warning(msg, h.fields(args))
	case hclog.Error:
		h.l.Error(msg, h.fields(args))
	}
}

func (h *_hclog) Trace(msg string, args ...interface{}) { h.l.Trace(msg, h.fields(args)) }
func (h *_hclog) Debug(msg string, args ...interface{}) { h.l.Debug(msg, h.fields(args)) }
func (h *_hclog) Info(msg string, args ...interface{})  { h.l.Info(msg, h.fields(args)) }
func (h *_hclog) Warn(msg string, args ...interface{})  { h.l.Warning(msg, h.fields(args)) }
func (h *_hclog) Error(msg string, args ...interface{}) { h.l.Error(msg, h.fields(args)) }

func (h *_hclog) IsTrace() bool { return h.l.GetLevel() >= TraceLevel }
func (h *_hclog) IsDebug() bool { return h.l.GetLevel() >= DebugLevel }
func (h *_hclog) IsInfo() bool  { return h.l.GetLevel() >= InfoLevel }
func (h *_hclog) IsWarn() bool  { return h.l.GetLevel() >= WarnLevel }
func (h *_hclog) IsError() bool { return h.l.GetLevel() >= ErrorLevel }

func (h *_hclog) ImpliedArgs() []interface{} { return nil }

func (h *_hclog) With(args ...interface{}) hclog.Logger {
	n := &_hclog{l: h.l, name: h.name}
	if len(args) > 0 {
		h.l.SetFields(Fields{hclogArgsField: args})
	}
	return n
}

func (h *_hclog) Name() string { return h.name }

func (h *_hclog) Named(name string) hclog.Logger {
	if h.name != "" {
		name = h.name + "." + name
	}
	return h.ResetNamed(name)
}

func (h *_hclog) ResetNamed(name string) hclog.Logger {
	return &_hclog{l: h.l, name: name}
}

func (h *_hclog) SetLevel(level hclog.Level) {
	switch level {
	case hclog.Trace:
		h.l.SetLevel(TraceLevel)
	case hclog.Debug:
		h.l.SetLevel(DebugLevel)
	case hclog.Info:
		h.l.SetLevel(InfoLevel)
	case hclog.Warn:
		h.l.SetLevel(WarnLevel)
	case hclog.Error:
		h.l.SetLevel(ErrorLevel)
	}
}

func (h *_hclog) GetLevel() hclog.Level {
	switch h.l.GetLevel() {
	case TraceLevel:
		return hclog.Trace
	case DebugLevel:
		return hclog.Debug
	case InfoLevel:
		return hclog.Info
	case WarnLevel:
		return hclog.Warn
	default:
		return hclog.Error
	}
}

func (h *_hclog) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(h.StandardWriter(opts), "", log.LstdFlags)
}

func (h *_hclog) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return &hclogWriter{l: h.l}
}

type hclogWriter struct {
	l Logger
}

func (w *hclogWriter) Write(p []byte) (int, error) {
	w.l.Info(string(p), nil)
	return len(p), nil
}
