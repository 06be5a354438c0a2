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

package dtls

import (
	"crypto/tls"
	"crypto/x509"

	"github.com/sabouaram/dgramrt/certificates/ca"
	"github.com/sabouaram/dgramrt/certificates/certs"
	"github.com/sabouaram/dgramrt/sockerr"
)

// VerifyPolicy decides a peer certificate's fate at one chain position.
// preVerified reports whether standard chain validation against the trust
// store succeeded; depth is the certificate's position (0 = leaf); subject
// is the certificate under inspection. Returning false rejects the
// handshake.
type VerifyPolicy func(preVerified bool, depth int, subject *x509.Certificate) bool

// AcceptSelfSigned is the policy used by the example server: a peer whose
// chain did not verify is still accepted when it presents exactly one
// self-issued certificate.
func AcceptSelfSigned(preVerified bool, depth int, subject *x509.Certificate) bool {
	if preVerified {
		return true
	}
	return depth == 0 && subject != nil && subject.Issuer.String() == subject.Subject.String()
}

// RequireVerified is the strict policy: only chain-validated peers pass.
func RequireVerified(preVerified bool, depth int, subject *x509.Certificate) bool {
	return preVerified
}

// Credentials bundles the local certificate pair and the peer trust store,
// both consumed as opaque PEM.
type Credentials struct {
	pair  certs.Cert
	trust ca.Cert
}

// NewCredentials parses a PEM private key, a PEM certificate chain and a
// PEM trust-anchor bundle. trustPEM may be empty for a client that trusts
// nothing but its policy.
func NewCredentials(keyPEM, chainPEM, trustPEM string) (*Credentials, error) {
	pair, err := certs.ParsePair(keyPEM, chainPEM)
	if err != nil {
		return nil, sockerr.New(sockerr.KindHandshakeFailed, err)
	}

	c := &Credentials{pair: pair}
	if trustPEM != "" {
		t, terr := ca.Parse(trustPEM)
		if terr != nil {
			return nil, sockerr.New(sockerr.KindHandshakeFailed, terr)
		}
		c.trust = t
	}
	return c, nil
}

// TLS returns the local pair in the form the record engine consumes.
func (c *Credentials) TLS() tls.Certificate {
	return c.pair.TLS()
}

// Pool builds the x509 pool of trust anchors, or nil when none were given.
func (c *Credentials) Pool() *x509.CertPool {
	if c.trust == nil {
		return nil
	}
	p := x509.NewCertPool()
	c.trust.AppendPool(p)
	return p
}

// verifier adapts a VerifyPolicy into the raw-certificates callback shape
// record engines expose. Each presented certificate is policy-checked at
// its depth; chain verification against the pool provides preVerified.
func (c *Credentials) verifier(policy VerifyPolicy) func(rawCerts [][]byte, chains [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, chains [][]*x509.Certificate) error {
		if policy == nil {
			policy = RequireVerified
		}

		parsed := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			crt, err := x509.ParseCertificate(raw)
			if err != nil {
				return sockerr.New(sockerr.KindHandshakeFailed, err)
			}
			parsed = append(parsed, crt)
		}
		if len(parsed) == 0 {
			return sockerr.New(sockerr.KindHandshakeFailed)
		}

		preVerified := len(chains) > 0
		if !preVerified && c.trust != nil {
			pool := c.Pool()
			inter := x509.NewCertPool()
			for _, crt := range parsed[1:] {
				inter.AddCert(crt)
			}
			if _, err := parsed[0].Verify(x509.VerifyOptions{Roots: pool, Intermediates: inter}); err == nil {
				preVerified = true
			}
		}

		for depth := len(parsed) - 1; depth >= 0; depth-- {
			if !policy(preVerified, depth, parsed[depth]) {
				return sockerr.New(sockerr.KindHandshakeFailed)
			}
		}
		return nil
	}
}
