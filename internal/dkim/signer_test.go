package dkim

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func TestSign(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	signer := NewSigner(key, "example.com", "mail")

	if signer.Domain() != "example.com" {
		t.Errorf("Domain() = %q, want %q", signer.Domain(), "example.com")
	}
	if signer.Selector() != "mail" {
		t.Errorf("Selector() = %q, want %q", signer.Selector(), "mail")
	}

	msg := []byte("From: sender@example.com\r\nTo: recipient@example.com\r\nSubject: Test\r\n\r\nHello\r\n")
	signed, err := signer.Sign(msg)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if !bytes.Contains(signed, []byte("DKIM-Signature:")) {
		t.Error("signed message missing DKIM-Signature header")
	}
	if !bytes.Contains(signed, []byte("d=example.com")) {
		t.Error("signature missing domain tag")
	}
}

func TestNewSignerFromFile(t *testing.T) {
	tmpDir := t.TempDir()

	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	keyPath := filepath.Join(tmpDir, "test.key")
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatal(err)
	}

	t.Run("valid key file", func(t *testing.T) {
		signer, err := NewSignerFromFile(keyPath, "example.com", "mail")
		if err != nil {
			t.Fatalf("NewSignerFromFile failed: %v", err)
		}
		if signer.Domain() != "example.com" {
			t.Errorf("Domain() = %q, want %q", signer.Domain(), "example.com")
		}
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := NewSignerFromFile("/nonexistent/key.pem", "example.com", "mail")
		if err == nil {
			t.Error("expected error for non-existent file")
		}
	})
}
