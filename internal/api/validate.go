package api

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"LineageMarket/internal/envelope"
	"LineageMarket/internal/ids"
	"LineageMarket/internal/market"
	"LineageMarket/internal/types"
)

const (
	// hashSize is the expected size of a call hash.
	hashSize = 32

	// senderSize is the expected size of an Ed25519 public key.
	senderSize = 32

	// signatureSize is the expected size of an Ed25519 signature.
	signatureSize = 64

	// maxFunctionName bounds the function name length.
	maxFunctionName = 64
)

// validateCall checks a call envelope's structure, hash and Ed25519 signature
// and returns the authenticated call.
func validateCall(data []byte) (call *market.Call, retErr error) {
	// FlatBuffers panics on malformed data, recover gracefully
	defer func() {
		if r := recover(); r != nil {
			call = nil
			retErr = fmt.Errorf("malformed call data")
		}
	}()

	if len(data) < 8 {
		return nil, fmt.Errorf("call data too short")
	}

	c := types.GetRootAsCall(data, 0)

	if err := validateFieldSizes(c); err != nil {
		return nil, err
	}

	if err := validateHash(c); err != nil {
		return nil, err
	}

	if err := validateSignature(c); err != nil {
		return nil, err
	}

	sender, err := ids.AddressFromBytes(c.SenderBytes())
	if err != nil {
		return nil, err
	}

	out := &market.Call{
		Sender:   sender,
		Function: string(c.FunctionName()),
		Args:     bytes.Clone(c.ArgsBytes()),
	}
	copy(out.Hash[:], c.HashBytes())

	return out, nil
}

// validateFieldSizes checks that all fixed-size fields have the correct length.
func validateFieldSizes(c *types.Call) error {
	if len(c.HashBytes()) != hashSize {
		return fmt.Errorf("invalid hash size: got %d, want %d", len(c.HashBytes()), hashSize)
	}

	if len(c.SenderBytes()) != senderSize {
		return fmt.Errorf("invalid sender size: got %d, want %d", len(c.SenderBytes()), senderSize)
	}

	if len(c.SignatureBytes()) != signatureSize {
		return fmt.Errorf("invalid signature size: got %d, want %d", len(c.SignatureBytes()), signatureSize)
	}

	name := c.FunctionName()

	if len(name) == 0 {
		return fmt.Errorf("empty function name")
	}

	if len(name) > maxFunctionName {
		return fmt.Errorf("function name too long: %d bytes", len(name))
	}

	return nil
}

// validateHash recomputes the call hash and compares it to the declared hash.
func validateHash(c *types.Call) error {
	expected := envelope.Hash(c.SenderBytes(), c.Nonce(), string(c.FunctionName()), c.ArgsBytes())

	if !bytes.Equal(c.HashBytes(), expected[:]) {
		return fmt.Errorf("hash mismatch")
	}

	return nil
}

// validateSignature verifies the Ed25519 signature over the call hash.
func validateSignature(c *types.Call) error {
	if !ed25519.Verify(c.SenderBytes(), c.HashBytes(), c.SignatureBytes()) {
		return fmt.Errorf("invalid signature")
	}

	return nil
}
