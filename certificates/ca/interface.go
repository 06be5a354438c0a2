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

// Package ca holds the peer-verification trust anchors as opaque PEM.
//
// Input is always PEM bytes the caller already loaded; no path discovery
// or file access happens here. The only consumers are the session layer's
// verification callback, which projects the anchors into an
// x509.CertPool, and whatever diagnostics want the chain re-rendered as
// PEM.
package ca

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"

	liberr "github.com/sabouaram/dgramrt/errors"
)

const (
	// CodeInvalidPair marks a certificate pair (key + cert) that is invalid or incomplete.
	CodeInvalidPair liberr.CodeError = liberr.MinPkgCertificateCA + iota
	// CodeInvalidCertificate marks a certificate that cannot be parsed or is malformed.
	CodeInvalidCertificate
)

var (
	// ErrInvalidPairCertificate is returned when a certificate pair (key + cert) is invalid or incomplete.
	ErrInvalidPairCertificate liberr.Error

	// ErrInvalidCertificate is returned when a certificate cannot be parsed or is malformed.
	ErrInvalidCertificate liberr.Error
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgCertificateCA, func(code liberr.CodeError) string {
		switch code {
		case CodeInvalidPair:
			return "invalid pair certificate"
		case CodeInvalidCertificate:
			return "invalid certificate"
		default:
			return liberr.UnknownMessage
		}
	})

	ErrInvalidPairCertificate = CodeInvalidPair.Error()
	ErrInvalidCertificate = CodeInvalidCertificate.Error()
}

// Cert is a parsed set of trust anchors. All operations are safe for
// concurrent reads; Append calls must not race with readers.
type Cert interface {
	// Len returns the number of anchors held.
	Len() int

	// AppendPool adds every anchor to the given pool.
	AppendPool(p *x509.CertPool)

	// AppendBytes parses more PEM anchors into the set.
	AppendBytes(p []byte) error

	// AppendString parses more PEM anchors into the set.
	AppendString(str string) error

	// Chain renders the anchors back as one PEM chain.
	Chain() (string, error)

	// SliceChain renders each anchor as its own PEM block.
	SliceChain() ([]string, error)

	// String renders the anchors as one PEM chain, empty on failure.
	String() string
}

// Certif is the Cert implementation: the parsed anchor list.
type Certif struct {
	c []*x509.Certificate
}

func (o *Certif) Len() int {
	return len(o.c)
}

func (o *Certif) AppendBytes(p []byte) error {
	c := &Certif{
		c: make([]*x509.Certificate, 0),
	}

	if e := c.unMarshall(p); e != nil {
		return e
	}

	o.c = append(o.c, c.c...)
	return nil
}

func (o *Certif) AppendString(str string) error {
	return o.AppendBytes([]byte(str))
}

// unMarshall parses every CERTIFICATE block out of p; non-certificate
// blocks are skipped.
func (o *Certif) unMarshall(p []byte) error {
	if len(p) < 1 {
		return ErrInvalidPairCertificate
	}

	p = bytes.TrimSpace(p)
	p = bytes.Trim(p, "\"")
	p = bytes.Replace(p, []byte("\\n"), []byte("\n"), -1) // nolint

	v := make([]*x509.Certificate, 0)

	for {
		block, rest := pem.Decode(p)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			if c, e := x509.ParseCertificate(block.Bytes); e == nil {
				v = append(v, c)
			}
		}

		p = rest
	}

	o.c = v
	return nil
}

// Parse parses a PEM-encoded chain of trust anchors.
func Parse(str string) (Cert, error) {
	return ParseByte([]byte(str))
}

// ParseByte parses a PEM-encoded chain of trust anchors from a byte
// slice. Empty input and input with no parseable CERTIFICATE block are
// both rejected.
func ParseByte(p []byte) (Cert, error) {
	c := &Certif{
		c: make([]*x509.Certificate, 0),
	}

	if e := c.unMarshall(p); e != nil {
		return nil, e
	}
	if c.Len() < 1 {
		return nil, ErrInvalidCertificate
	}

	return c, nil
}
