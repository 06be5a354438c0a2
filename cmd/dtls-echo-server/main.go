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

// dtls-echo-server is the operator-facing example of the runtime: a DTLS
// 1.2 echo server with a stateless cookie gate, one event loop, one
// listener and one session per verified peer. Clean shutdown on
// SIGINT/SIGTERM exits 0; any startup failure (key/certificate load, bind,
// backend init) exits non-zero.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/sabouaram/dgramrt/config"
	"github.com/sabouaram/dgramrt/dtls"
	"github.com/sabouaram/dgramrt/logger"
	"github.com/sabouaram/dgramrt/metrics"
	"github.com/sabouaram/dgramrt/socket"
	"github.com/sabouaram/dgramrt/sockerr"
)

var (
	flagListen   string
	flagPort     uint16
	flagLevel    string
	flagCertFile string
	flagKeyFile  string
	flagCAFile   string
	flagStrict   bool
)

var rootCmd = &cobra.Command{
	Use:           "dtls-echo-server",
	Short:         "DTLS 1.2 echo server over the async datagram runtime",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flagListen, "listen", "::", "listen address (v4 or v6)")
	f.Uint16Var(&flagPort, "port", 4433, "listen port")
	f.StringVarP(&flagLevel, "verbosity", "v", "info", "log level (error, warning, info, debug, trace)")
	f.StringVar(&flagCertFile, "cert", "server.crt", "PEM certificate chain file")
	f.StringVar(&flagKeyFile, "key", "server.key", "PEM private key file")
	f.StringVar(&flagCAFile, "ca", "", "PEM trust-anchor bundle (optional)")
	f.BoolVar(&flagStrict, "strict-verify", false, "reject peers whose chain does not verify (default accepts self-signed)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		jww.ERROR.Println(err)
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	// bootstrap logging until the structured logger is configured
	jww.SetStdoutThreshold(jww.LevelInfo)

	chainPEM, err := os.ReadFile(flagCertFile)
	if err != nil {
		return fmt.Errorf("certificate load: %w", err)
	}
	keyPEM, err := os.ReadFile(flagKeyFile)
	if err != nil {
		return fmt.Errorf("key load: %w", err)
	}
	trustPEM := ""
	if flagCAFile != "" {
		t, terr := os.ReadFile(flagCAFile)
		if terr != nil {
			return fmt.Errorf("trust store load: %w", terr)
		}
		trustPEM = string(t)
	}

	cfg, cerr := config.Decode(map[string]interface{}{
		"listen":            fmt.Sprintf("[%s]:%d", flagListen, flagPort),
		"log-level":         flagLevel,
		"cert-chain":        string(chainPEM),
		"private-key":       string(keyPEM),
		"trust":             trustPEM,
		"allow-self-signed": !flagStrict,
	})
	if cerr != nil {
		return cerr
	}

	lg := logger.New(cfg.Level(), os.Stderr)
	mc := metrics.New()
	if err = mc.Register(nil); err != nil {
		lg.Warning("metrics registration failed", logger.Fields{"error": err.Error()})
	}

	loop, err := socket.NewWithObservers(lg, mc)
	if err != nil {
		return fmt.Errorf("backend init: %w", err)
	}

	creds, err := dtls.NewCredentials(cfg.PrivateKeyPEM, cfg.CertChainPEM, cfg.TrustPEM)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}

	policy := dtls.AcceptSelfSigned
	if !cfg.AllowSelfSigned {
		policy = dtls.RequireVerified
	}

	ep, err := cfg.ListenEndpoint()
	if err != nil {
		return err
	}

	lst, err := dtls.NewListener(loop, ep, cfg.SocketOptions(), creds, policy, dtls.NewPionEngine, lg, mc)
	if err != nil {
		return fmt.Errorf("bind: %w", err)
	}

	if err = lst.Listen(func(sess *dtls.Session) {
		sess.Handshake(func(hsErr error) {
			if hsErr != nil {
				_ = sess.Close()
				return
			}
			echo(sess, lg)
		})
	}); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		lg.Info("terminating", logger.Fields{"signal": s.String()})
		_ = lst.Close()
		loop.Stop()
	}()

	jww.INFO.Printf("listening on %s", ep.String())
	return loop.Run()
}

// echo pumps one session: read a message, write it back, repeat until the
// peer goes away.
func echo(sess *dtls.Session, lg logger.Logger) {
	buf := make([]byte, 1<<14)
	sess.Read(buf, func(err error, n int) {
		if err != nil {
			if !sockerr.Is(err, sockerr.KindCancelled) && !sockerr.Is(err, sockerr.KindPeerClosed) {
				lg.Warning("session read failed", logger.Fields{"peer": sess.Peer().String(), "error": err.Error()})
			}
			_ = sess.Close()
			return
		}
		sess.Write(buf[:n], func(werr error, _ int) {
			if werr != nil {
				lg.Warning("session write failed", logger.Fields{"peer": sess.Peer().String(), "error": werr.Error()})
				_ = sess.Close()
				return
			}
			echo(sess, lg)
		})
	})
}
