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

// Package config decodes the runtime's operator-facing settings from a
// generic map, so a flag set, an environment loader or a file parser can
// all feed the same struct without the core depending on any one of them.
package config

import (
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/sabouaram/dgramrt/endpoint"
	liberr "github.com/sabouaram/dgramrt/errors"
	"github.com/sabouaram/dgramrt/logger"
	"github.com/sabouaram/dgramrt/socket"
)

const (
	base liberr.CodeError = liberr.MinPkgConfig

	// ErrorDecode marks a mapstructure decode failure.
	ErrorDecode liberr.CodeError = base + iota
	// ErrorEndpoint marks an unparseable listen endpoint string.
	ErrorEndpoint
	// ErrorValidate marks a decoded value outside its allowed range.
	ErrorValidate
)

func init() {
	liberr.RegisterIdFctMessage(base, func(code liberr.CodeError) string {
		switch code {
		case ErrorDecode:
			return "cannot decode runtime configuration"
		case ErrorEndpoint:
			return "cannot parse listen endpoint"
		case ErrorValidate:
			return "runtime configuration value out of range"
		default:
			return liberr.UnknownMessage
		}
	})
}

// Runtime is the full operator-facing configuration of the echo server and
// any embedding application.
type Runtime struct {
	// Listen is the endpoint string the server binds, e.g. "[::]:4433".
	Listen string `mapstructure:"listen"`

	// LogLevel is the logger.ParseLevel name ("info", "debug", ...).
	LogLevel string `mapstructure:"log-level"`

	// ReuseAddress, Broadcast, NoSigpipe, RecvBufferBytes, SendBufferBytes
	// and RecvTimeout mirror socket.Options one for one.
	ReuseAddress    bool          `mapstructure:"reuse-address"`
	Broadcast       bool          `mapstructure:"broadcast"`
	NoSigpipe       bool          `mapstructure:"no-sigpipe"`
	RecvBufferBytes int           `mapstructure:"recv-buffer-bytes"`
	SendBufferBytes int           `mapstructure:"send-buffer-bytes"`
	RecvTimeout     time.Duration `mapstructure:"recv-timeout"`

	// CertChainPEM and PrivateKeyPEM are the server pair, as opaque PEM.
	CertChainPEM  string `mapstructure:"cert-chain"`
	PrivateKeyPEM string `mapstructure:"private-key"`

	// TrustPEM holds the PEM trust anchors for peer verification.
	TrustPEM string `mapstructure:"trust"`

	// AllowSelfSigned selects the self-signed-accepting verify policy.
	AllowSelfSigned bool `mapstructure:"allow-self-signed"`
}

// Default returns the Runtime the echo server starts from when the
// operator supplies nothing.
func Default() Runtime {
	return Runtime{
		Listen:          "[::]:4433",
		LogLevel:        "info",
		ReuseAddress:    true,
		RecvTimeout:     500 * time.Millisecond,
		AllowSelfSigned: true,
	}
}

// Decode fills a Runtime from a generic map, on top of Default values.
func Decode(raw map[string]interface{}) (Runtime, liberr.Error) {
	cfg := Default()

	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cfg, ErrorDecode.Error(err)
	}
	if err = d.Decode(raw); err != nil {
		return cfg, ErrorDecode.Error(err)
	}

	if e := cfg.Validate(); e != nil {
		return cfg, e
	}
	return cfg, nil
}

// Validate checks range constraints that mapstructure cannot express.
func (c Runtime) Validate() liberr.Error {
	if _, err := endpoint.ParseString(c.Listen); err != nil {
		return ErrorEndpoint.Error(err)
	}
	if c.RecvBufferBytes < 0 || c.SendBufferBytes < 0 || c.RecvTimeout < 0 {
		return ErrorValidate.Error()
	}
	return nil
}

// ListenEndpoint parses the Listen string; Validate has already vouched
// for it, so failures here mean the Runtime was mutated after Decode.
func (c Runtime) ListenEndpoint() (endpoint.Endpoint, error) {
	return endpoint.ParseString(c.Listen)
}

// SocketOptions projects the Runtime onto the socket layer's option set.
func (c Runtime) SocketOptions() socket.Options {
	return socket.Options{
		ReuseAddress:    c.ReuseAddress,
		Broadcast:       c.Broadcast,
		NoSigpipe:       c.NoSigpipe,
		RecvBufferBytes: c.RecvBufferBytes,
		SendBufferBytes: c.SendBufferBytes,
		RecvTimeout:     c.RecvTimeout,
	}
}

// Level resolves the configured log level name.
func (c Runtime) Level() logger.Level {
	return logger.ParseLevel(c.LogLevel)
}
