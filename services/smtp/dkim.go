package smtp

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/emersion/go-msgauth/dkim"
)

type dkimSigner struct {
	domain   string
	selector string
	signer   crypto.Signer
}

func newDkimSigner(domain, selector, keyPath string) (*dkimSigner, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading DKIM key %s: %w", keyPath, err)
	}

	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", keyPath)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing DKIM private key: %w", err)
		}
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("DKIM key does not implement crypto.Signer")
	}
	return &dkimSigner{domain: domain, selector: selector, signer: signer}, nil
}

// sign prepends a relaxed/relaxed DKIM-Signature header.
func (d *dkimSigner) sign(msg []byte) ([]byte, error) {
	opts := &dkim.SignOptions{
		Domain:   d.domain,
		Selector: d.selector,
		Signer:   d.signer,
		HeaderKeys: []string{
			"From", "To", "Subject", "Date",
			"Message-Id", "Mime-Version", "Content-Type",
		},
	}

	var signed bytes.Buffer
	if err := dkim.Sign(&signed, bytes.NewReader(msg), opts); err != nil {
		return nil, fmt.Errorf("DKIM signing: %w", err)
	}
	return signed.Bytes(), nil
}
