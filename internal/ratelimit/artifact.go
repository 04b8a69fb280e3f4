// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tjfoc/gmsm/sm2"
	"github.com/tjfoc/gmsm/x509"
)

// Artifact file names inside the rate-limit config directory.
const (
	artifactBinFile = "rate_limit.bin"
	artifactSigFile = "rate_limit.bin.sig"
	artifactUIDFile = "rate_limit.uid"
	artifactKeyFile = "public_key.pem"
)

// xorObfuscationKey is the fixed key the packaging tool applies over the
// JSON payload. The payload repeats it in its xorKey field so a
// deobfuscation with the wrong key fails both the JSON parse and the
// field comparison.
var xorObfuscationKey = []byte("barrage-rl-v1")

// artifactConfig is the deobfuscated payload of rate_limit.bin.
type artifactConfig struct {
	Enabled             bool              `json:"enabled"`
	GlobalLimit         int               `json:"global_limit"`
	GlobalPeriodSeconds int               `json:"global_period_seconds"`
	XORKey              string            `json:"xorKey"`
	FileHashes          map[string]string `json:"file_hashes"`
}

// xorBytes applies the repeating-key XOR used for artifact obfuscation.
// The transform is its own inverse.
func xorBytes(data, key []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// loadArtifact reads, verifies and decodes the operator-supplied config
// from dir. A missing rate_limit.bin returns (nil, nil): the limiter
// then runs disabled. Any verification failure returns an error; the
// caller enters the verification-failed state.
func loadArtifact(dir string) (*artifactConfig, error) {
	binPath := filepath.Join(dir, artifactBinFile)
	raw, err := os.ReadFile(binPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", artifactBinFile, err)
	}

	if err := verifySignature(dir, raw); err != nil {
		return nil, err
	}

	var cfg artifactConfig
	if err := json.Unmarshal(xorBytes(raw, xorObfuscationKey), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode rate limit config: %w", err)
	}
	if cfg.XORKey != string(xorObfuscationKey) {
		return nil, fmt.Errorf("rate limit config key mismatch")
	}

	if err := verifyFileHashes(cfg.FileHashes); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// verifySignature checks the SM2 signature over the raw artifact bytes
// using the bundled public key and user-tied UID.
func verifySignature(dir string, raw []byte) error {
	sig, err := os.ReadFile(filepath.Join(dir, artifactSigFile))
	if err != nil {
		return fmt.Errorf("failed to read signature: %w", err)
	}
	uid, err := os.ReadFile(filepath.Join(dir, artifactUIDFile))
	if err != nil {
		return fmt.Errorf("failed to read uid: %w", err)
	}
	pemBytes, err := os.ReadFile(filepath.Join(dir, artifactKeyFile))
	if err != nil {
		return fmt.Errorf("failed to read public key: %w", err)
	}

	pub, err := x509.ReadPublicKeyFromPem(pemBytes)
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}

	r, s, err := sm2.SignDataToSignDigit(sig)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}

	uidBytes := []byte(strings.TrimSpace(string(uid)))
	if !sm2.Sm2Verify(pub, raw, uidBytes, r, s) {
		return fmt.Errorf("rate limit config signature verification failed")
	}
	return nil
}

// verifyFileHashes compares the current on-disk SHA-256 of every listed
// runtime artifact against the signed expectation.
func verifyFileHashes(expected map[string]string) error {
	for path, wantHex := range expected {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read protected file %s: %w", path, err)
		}
		sum := sha256.Sum256(data)
		if !strings.EqualFold(hex.EncodeToString(sum[:]), wantHex) {
			return fmt.Errorf("integrity hash mismatch for %s", path)
		}
	}
	return nil
}
