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

package ca_test

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

	"github.com/sabouaram/dgramrt/certificates/ca"
)

// genCAPEM builds a throwaway self-signed CA certificate in memory.
func genCAPEM() string {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	Expect(err).ToNot(HaveOccurred())

	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test CA", Organization: []string{"Test Org"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	Expect(err).ToNot(HaveOccurred())

	buf := bytes.NewBuffer(nil)
	Expect(pem.Encode(buf, &pem.Block{Type: "CERTIFICATE", Bytes: der})).To(Succeed())

	return buf.String()
}

var _ = Describe("[TC-CA] Trust anchors", func() {
	It("[TC-CA-001] Parse reads one anchor from a PEM string", func() {
		c, err := ca.Parse(genCAPEM())
		Expect(err).ToNot(HaveOccurred())
		Expect(c.Len()).To(Equal(1))
		Expect(c.String()).To(ContainSubstring("BEGIN CERTIFICATE"))
	})

	It("[TC-CA-002] ParseByte reads a multi-anchor chain", func() {
		c, err := ca.ParseByte([]byte(genCAPEM() + genCAPEM()))
		Expect(err).ToNot(HaveOccurred())
		Expect(c.Len()).To(Equal(2))
	})

	It("[TC-CA-003] AppendBytes and AppendString grow the set", func() {
		c, err := ca.Parse(genCAPEM())
		Expect(err).ToNot(HaveOccurred())
		Expect(c.AppendBytes([]byte(genCAPEM()))).To(Succeed())
		Expect(c.AppendString(genCAPEM())).To(Succeed())
		Expect(c.Len()).To(Equal(3))
	})

	It("[TC-CA-004] Chain and SliceChain re-render the anchors", func() {
		c, err := ca.Parse(genCAPEM() + genCAPEM())
		Expect(err).ToNot(HaveOccurred())

		chain, err := c.Chain()
		Expect(err).ToNot(HaveOccurred())
		Expect(chain).To(ContainSubstring("END CERTIFICATE"))
		Expect(c.String()).To(Equal(chain))

		slices, err := c.SliceChain()
		Expect(err).ToNot(HaveOccurred())
		Expect(slices).To(HaveLen(2))
	})

	It("[TC-CA-005] AppendPool feeds an x509 pool for verification", func() {
		caPEM := genCAPEM()
		c, err := ca.Parse(caPEM)
		Expect(err).ToNot(HaveOccurred())

		pool := x509.NewCertPool()
		c.AppendPool(pool)

		block, _ := pem.Decode([]byte(caPEM))
		leaf, err := x509.ParseCertificate(block.Bytes)
		Expect(err).ToNot(HaveOccurred())
		_, err = leaf.Verify(x509.VerifyOptions{Roots: pool})
		Expect(err).ToNot(HaveOccurred())
	})

	It("[TC-CA-006] rejects empty and certificate-free input", func() {
		_, err := ca.Parse("")
		Expect(err).To(HaveOccurred())
		_, err = ca.Parse("not pem at all")
		Expect(err).To(HaveOccurred())
	})

	It("[TC-CA-007] tolerates surrounding whitespace", func() {
		c, err := ca.Parse("\n\r\n  " + genCAPEM() + "  \n\r\n")
		Expect(err).ToNot(HaveOccurred())
		Expect(c.Len()).To(Equal(1))
	})
})
