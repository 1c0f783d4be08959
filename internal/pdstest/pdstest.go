// Copyright 2022 Cockroach Labs Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pdstest contains test support code.
package pdstest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	cryptoRand "crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	golog "log"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ConfigureLogging should be called from TestMain to achieve consistent
// output from tests versus production.
func ConfigureLogging() {
	// Hijack anything that uses the standard go logger, like http.
	pw := log.WithField("golog", true).Writer()
	// logrus will provide timestamp info.
	golog.SetFlags(0)
	golog.SetOutput(pw)

	log.DeferExitHandler(func() { _ = pw.Close() })
	log.SetLevel(log.TraceLevel)
	log.SetFormatter(&log.JSONFormatter{
		TimestampFormat: time.Stamp,
	})
}

// Certificate is a self-signed server certificate valid for localhost,
// the loopback addresses, and any additional host names requested.
type Certificate struct {
	Config *tls.Config // Server-side configuration presenting the certificate.
	PEM    []byte      // The certificate, suitable for use as a CA bundle.
}

// WriteCAFile writes the certificate into dir and returns the path.
func (c *Certificate) WriteCAFile(dir string) (string, error) {
	path := filepath.Join(dir, "ca.pem")
	return path, errors.WithStack(os.WriteFile(path, c.PEM, 0644))
}

// SelfSigned generates a new self-signed server certificate.
func SelfSigned(hosts ...string) (*Certificate, error) {
	// Loosely based on https://golang.org/src/crypto/tls/generate_cert.go
	priv, err := ecdsa.GenerateKey(elliptic.P256(), cryptoRand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate private key")
	}

	now := time.Now().UTC()

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := cryptoRand.Int(cryptoRand.Reader, serialNumberLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate serial number")
	}

	cert := x509.Certificate{
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              append([]string{"localhost"}, hosts...),
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.AddDate(1, 0, 0),
		SerialNumber:          serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Puppet Data Service Test"},
		},
	}

	bytes, err := x509.CreateCertificate(cryptoRand.Reader, &cert, &cert, &priv.PublicKey, priv)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate certificate")
	}

	return &Certificate{
		Config: &tls.Config{
			Certificates: []tls.Certificate{{
				Certificate: [][]byte{bytes},
				PrivateKey:  priv,
			}}},
		PEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: bytes}),
	}, nil
}

// TokenSigningKey is a trivial key for signing PDS API tokens.
var TokenSigningKey *ecdsa.PrivateKey

func init() {
	var err error
	TokenSigningKey, err = ecdsa.GenerateKey(elliptic.P256(), cryptoRand.Reader)
	if err != nil {
		log.WithError(err).Fatal("could not initialize dummy signing key")
	}
}

// MakeToken creates a token for the subject, signed with
// TokenSigningKey, that expires after the given duration.
func MakeToken(subject string, ttl time.Duration) string {
	tkn := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	})
	signed, err := tkn.SignedString(TokenSigningKey)
	if err != nil {
		log.Fatal(err)
	}
	return signed
}
