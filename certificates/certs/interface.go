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

// Package certs holds the local certificate pair (private key +
// certificate chain) as opaque PEM.
//
// Input is always PEM bytes the caller already loaded; no path discovery
// or file access happens here. The session layer consumes the pair
// through TLS(); Pair() and Chain() re-render it as PEM for diagnostics.
package certs

import (
	"crypto/tls"
)

// Cert is a parsed certificate pair.
type Cert interface {
	// TLS returns the pair in the form the record engine consumes.
	TLS() tls.Certificate

	// Pair re-renders the pair as separate PEM public and private parts.
	Pair() (pub string, key string, err error)

	// Chain re-renders the pair as one combined PEM chain.
	Chain() (string, error)

	// String renders the combined chain, empty on failure.
	String() string
}

// Certif is the Cert implementation: the parsed pair.
type Certif struct {
	c tls.Certificate
}

// Parse parses one combined PEM string holding both the private key and
// the certificate chain.
func Parse(chain string) (Cert, error) {
	c := ConfigChain(chain)
	return parseCert(&c)
}

// ParsePair parses a PEM private key and a PEM certificate chain given
// separately.
func ParsePair(key, pub string) (Cert, error) {
	return parseCert(&ConfigPair{Key: key, Pub: pub})
}

func parseCert(cfg Config) (Cert, error) {
	if c, e := cfg.Cert(); e != nil {
		return nil, e
	} else if c == nil {
		return nil, ErrInvalidPairCertificate
	} else {
		return &Certif{c: *c}, nil
	}
}
