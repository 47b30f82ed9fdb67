package service

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"filippo.io/edwards25519"
	"github.com/chainsona/cpop-sub000/core"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"
)

// SignatureDecoder turns one text encoding of a signature into raw bytes
type SignatureDecoder struct {
	Name   string
	Decode func(string) ([]byte, error)
}

// SignatureCheck verifies a signature over a payload under one signing convention
type SignatureCheck struct {
	Name  string
	Check func(pub ed25519.PublicKey, payload, sig []byte) bool
}

// DefaultDecoders lists the encodings wallets use, in the order they are tried
var DefaultDecoders = []SignatureDecoder{
	{Name: "base64", Decode: base64.StdEncoding.DecodeString},
	{Name: "base58", Decode: base58.Decode},
	{Name: "hex", Decode: decodeHex},
}

// DefaultChecks lists the signing conventions, in the order they are tried
var DefaultChecks = []SignatureCheck{
	{Name: "sha256", Check: verifySHA256},
	{Name: "raw", Check: verifyRaw},
}

// VerifierConfig holds signature verification policy
type VerifierConfig struct {
	// CompatibilityMode accepts a well-formed signature from a valid curve point
	// even when no check succeeds. It weakens verification and is off by default.
	CompatibilityMode bool

	// ExpectedDomain, when set, rejects challenges issued for another domain
	ExpectedDomain string

	Decoders []SignatureDecoder
	Checks   []SignatureCheck
}

// SignatureVerifier confirms that a challenge was signed by the wallet it names
type SignatureVerifier struct {
	config VerifierConfig
	now    core.Clock
	logger *zap.Logger
}

// NewSignatureVerifier creates a new verifier
func NewSignatureVerifier(config VerifierConfig, now core.Clock, logger *zap.Logger) *SignatureVerifier {
	if len(config.Decoders) == 0 {
		config.Decoders = DefaultDecoders
	}
	if len(config.Checks) == 0 {
		config.Checks = DefaultChecks
	}
	if now == nil {
		now = time.Now
	}
	return &SignatureVerifier{
		config: config,
		now:    now,
		logger: logger,
	}
}

// Verify returns nil when signature is a valid signature of msg by claimedAddress
func (v *SignatureVerifier) Verify(msg core.ChallengeMessage, signature, claimedAddress string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("signature verification panicked",
				zap.String("address_prefix", addressPrefix(claimedAddress)),
				zap.Any("panic", r),
			)
			err = core.ErrInvalidSignature
		}
	}()

	payload, err := msg.Payload()
	if err != nil {
		return fmt.Errorf("failed to build payload: %w", core.ErrMalformedMessage)
	}

	challenge, err := core.ParseMessage(msg)
	if err != nil {
		return err
	}
	if err := challenge.CheckLive(v.now()); err != nil {
		return err
	}

	if v.config.ExpectedDomain != "" && challenge.Domain != v.config.ExpectedDomain {
		v.logger.Warn("challenge domain mismatch",
			zap.String("domain", challenge.Domain),
			zap.String("expected", v.config.ExpectedDomain),
		)
		return core.ErrDomainMismatch
	}

	if challenge.Address != claimedAddress {
		v.logger.Warn("challenge address does not match claimed address",
			zap.String("address_prefix", addressPrefix(claimedAddress)),
			zap.String("message_address_prefix", addressPrefix(challenge.Address)),
		)
		return core.ErrAddressMismatch
	}

	pubKey, err := core.DecodePublicKey(claimedAddress)
	if err != nil {
		return err
	}

	sig, encoding, ok := v.decodeSignature(signature)
	if !ok {
		v.logger.Warn("signature could not be decoded",
			zap.String("address_prefix", addressPrefix(claimedAddress)),
			zap.Int("signature_len", len(signature)),
		)
		return fmt.Errorf("undecodable signature: %w", core.ErrInvalidSignature)
	}

	for _, check := range v.config.Checks {
		if check.Check(pubKey, payload, sig) {
			v.logger.Debug("signature verified",
				zap.String("address_prefix", addressPrefix(claimedAddress)),
				zap.String("encoding", encoding),
				zap.String("convention", check.Name),
			)
			return nil
		}
	}

	if v.config.CompatibilityMode && isCurvePoint(pubKey) && len(sig) == ed25519.SignatureSize {
		v.logger.Warn("accepting signature in compatibility mode without cryptographic match",
			zap.String("address_prefix", addressPrefix(claimedAddress)),
			zap.String("encoding", encoding),
			zap.Int("signature_len", len(sig)),
		)
		return nil
	}

	v.logger.Warn("signature verification failed",
		zap.String("address_prefix", addressPrefix(claimedAddress)),
		zap.String("encoding", encoding),
		zap.Int("signature_len", len(sig)),
	)
	return core.ErrInvalidSignature
}

// decodeSignature returns the first decoding that yields an Ed25519-sized signature
func (v *SignatureVerifier) decodeSignature(signature string) ([]byte, string, bool) {
	if signature == "" {
		return nil, "", false
	}
	for _, d := range v.config.Decoders {
		sig, err := d.Decode(signature)
		if err == nil && len(sig) == ed25519.SignatureSize {
			return sig, d.Name, true
		}
	}
	return nil, "", false
}

func verifySHA256(pub ed25519.PublicKey, payload, sig []byte) bool {
	digest := sha256.Sum256(payload)
	return ed25519.Verify(pub, digest[:], sig)
}

func verifyRaw(pub ed25519.PublicKey, payload, sig []byte) bool {
	return ed25519.Verify(pub, payload, sig)
}

// decodeHex accepts hex with or without the 0x prefix
func decodeHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

func isCurvePoint(pub ed25519.PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(pub)
	return err == nil
}

// addressPrefix keeps log lines useful without printing whole keys
func addressPrefix(address string) string {
	if len(address) > 8 {
		return address[:8]
	}
	return address
}
