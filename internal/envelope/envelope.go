// Package envelope builds the signed FlatBuffers Call envelope that carries a
// market operation from a client to a node.
//
// The call hash is blake3 of the envelope serialized without hash and
// signature; the signature is Ed25519 over that hash. Both sides build the
// unsigned bytes with BuildUnsigned so the field order always matches.
package envelope

import (
	"crypto/ed25519"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/zeebo/blake3"

	"LineageMarket/internal/types"
)

// BuildUnsigned serializes a call without hash and signature.
func BuildUnsigned(sender []byte, nonce uint64, funcName string, args []byte) []byte {
	builder := flatbuffers.NewBuilder(256 + len(args))

	argsVec := builder.CreateByteVector(args)
	senderVec := builder.CreateByteVector(sender)
	funcNameOff := builder.CreateString(funcName)

	types.CallStart(builder)
	types.CallAddSender(builder, senderVec)
	types.CallAddNonce(builder, nonce)
	types.CallAddFunctionName(builder, funcNameOff)
	types.CallAddArgs(builder, argsVec)
	callOff := types.CallEnd(builder)

	builder.Finish(callOff)

	return builder.FinishedBytes()
}

// Hash returns the call hash of the given fields.
func Hash(sender []byte, nonce uint64, funcName string, args []byte) [32]byte {
	return blake3.Sum256(BuildUnsigned(sender, nonce, funcName, args))
}

// BuildSigned builds a complete signed call.
// Returns the serialized envelope and the call hash.
func BuildSigned(privKey ed25519.PrivateKey, nonce uint64, funcName string, args []byte) ([]byte, [32]byte) {
	pubKey := privKey.Public().(ed25519.PublicKey)

	hash := Hash(pubKey, nonce, funcName, args)
	sig := ed25519.Sign(privKey, hash[:])

	builder := flatbuffers.NewBuilder(384 + len(args))

	hashVec := builder.CreateByteVector(hash[:])
	sigVec := builder.CreateByteVector(sig)
	argsVec := builder.CreateByteVector(args)
	senderVec := builder.CreateByteVector(pubKey)
	funcNameOff := builder.CreateString(funcName)

	types.CallStart(builder)
	types.CallAddHash(builder, hashVec)
	types.CallAddSender(builder, senderVec)
	types.CallAddNonce(builder, nonce)
	types.CallAddFunctionName(builder, funcNameOff)
	types.CallAddArgs(builder, argsVec)
	types.CallAddSignature(builder, sigVec)
	callOff := types.CallEnd(builder)

	builder.Finish(callOff)

	return builder.FinishedBytes(), hash
}
