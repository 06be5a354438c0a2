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

package certs_test

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/dgramrt/certificates/certs"
)

// genPairPEM builds a throwaway self-signed pair entirely in memory.
func genPairPEM() (pub string, key string) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	Expect(err).ToNot(HaveOccurred())

	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	Expect(err).ToNot(HaveOccurred())

	bufPub := bytes.NewBuffer(nil)
	Expect(pem.Encode(bufPub, &pem.Block{Type: "CERTIFICATE", Bytes: der})).To(Succeed())

	pk, err := x509.MarshalPKCS8PrivateKey(priv)
	Expect(err).ToNot(HaveOccurred())
	bufKey := bytes.NewBuffer(nil)
	Expect(pem.Encode(bufKey, &pem.Block{Type: "PRIVATE KEY", Bytes: pk})).To(Succeed())

	return bufPub.String(), bufKey.String()
}

var _ = Describe("[TC-CRT] Certificate pair", func() {
	It("[TC-CRT-001] ParsePair yields a usable tls.Certificate", func() {
		pub, key := genPairPEM()
		c, err := certs.ParsePair(key, pub)
		Expect(err).ToNot(HaveOccurred())
		Expect(len(c.TLS().Certificate)).To(BeNumerically(">", 0))
		Expect(c.TLS().PrivateKey).ToNot(BeNil())
	})

	It("[TC-CRT-002] Parse accepts one combined PEM chain", func() {
		pub, key := genPairPEM()
		c, err := certs.Parse(pub + key)
		Expect(err).ToNot(HaveOccurred())
		Expect(len(c.TLS().Certificate)).To(BeNumerically(">", 0))
	})

	It("[TC-CRT-003] Pair and Chain re-render the PEM", func() {
		pub, key := genPairPEM()
		c, err := certs.ParsePair(key, pub)
		Expect(err).ToNot(HaveOccurred())

		p2, k2, err := c.Pair()
		Expect(err).ToNot(HaveOccurred())
		Expect(p2).To(ContainSubstring("BEGIN CERTIFICATE"))
		Expect(k2).To(ContainSubstring("PRIVATE KEY"))

		chain, err := c.Chain()
		Expect(err).ToNot(HaveOccurred())
		Expect(chain).To(ContainSubstring("BEGIN CERTIFICATE"))
		Expect(c.String()).To(ContainSubstring("BEGIN CERTIFICATE"))
	})

	It("[TC-CRT-004] rejects an empty pair", func() {
		_, err := certs.ParsePair("", "")
		Expect(err).To(HaveOccurred())
	})

	It("[TC-CRT-005] rejects a chain with no private key", func() {
		pub, _ := genPairPEM()
		_, err := certs.Parse(pub)
		Expect(err).To(HaveOccurred())
	})

	It("[TC-CRT-006] rejects garbage input", func() {
		_, err := certs.Parse("not pem at all")
		Expect(err).To(HaveOccurred())
	})
})
