// Package rawaddress classifies output scripts into the closed RawAddress
// variant set used to key the address->address_index store (C1).
package rawaddress

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// Kind is the closed set of address shapes the keyed store partitions by.
// Do not extend this via an interface hierarchy: the on-disk shard layout
// (§4.1) is keyed directly off this tag.
type Kind uint8

const (
	KindP2PK Kind = iota
	KindP2PKH
	KindP2SH
	KindP2WPKH
	KindP2WSH
	KindP2TR
	KindMultisig
	KindUnknown
	KindEmpty
)

var kindNames = [...]string{
	KindP2PK: "p2pk", KindP2PKH: "p2pkh", KindP2SH: "p2sh", KindP2WPKH: "p2wpkh",
	KindP2WSH: "p2wsh", KindP2TR: "p2tr", KindMultisig: "multisig",
	KindUnknown: "unknown", KindEmpty: "empty",
}

// String names the kind for use in dataset series paths and log output.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// FixedLength reports whether this kind has a fixed-width hash (20 or 32
// bytes), as opposed to a variable-length canonicalized script or a
// synthetic counter.
func (k Kind) FixedLength() bool {
	switch k {
	case KindP2PK, KindP2PKH, KindP2SH, KindP2WPKH, KindP2WSH, KindP2TR:
		return true
	default:
		return false
	}
}

// RawAddress is a classified output key: a Kind tag plus the bytes that
// identify it. Hash holds the 20/32-byte payload for fixed-length kinds,
// the canonicalized script for Multisig, or an 8-byte big-endian counter
// for Unknown/Empty.
type RawAddress struct {
	Kind Kind
	Hash []byte
}

// Key returns the canonical byte key used by the address->address_index
// store: a one-byte kind tag followed by the payload.
func (r RawAddress) Key() []byte {
	key := make([]byte, 1+len(r.Hash))
	key[0] = byte(r.Kind)
	copy(key[1:], r.Hash)
	return key
}

// Classifier turns an output script into a RawAddress. It owns the
// allocators for the Unknown/Empty synthetic counters so that no package
// level mutable state is needed (per the driver's "no global state" rule);
// one Classifier is created per indexing run and threaded explicitly. The
// counters are atomic because the block processor's output prepass (§5)
// classifies outputs from multiple goroutines concurrently.
type Classifier struct {
	params       *chaincfg.Params
	unknownCount atomic.Uint64
	emptyCount   atomic.Uint64
}

func NewClassifier(params *chaincfg.Params) *Classifier {
	return &Classifier{params: params}
}

// Classify extracts the script's RawAddress variant directly, rather than
// a display string, and never silently falls back: every script classifies
// to exactly one RawAddress.
func (c *Classifier) Classify(pkScript []byte, provablyUnspendable, isOpReturn bool) RawAddress {
	if provablyUnspendable || isOpReturn || len(pkScript) == 0 {
		return c.nextEmpty()
	}

	class, addrs, requiredSigs, err := txscript.ExtractPkScriptAddrs(pkScript, c.params)
	if err != nil || len(addrs) == 0 {
		return c.nextUnknown()
	}

	if class == txscript.MultiSigTy || requiredSigs > 1 {
		return RawAddress{Kind: KindMultisig, Hash: canonicalizeMultisig(pkScript)}
	}

	addr := addrs[0]
	switch class {
	case txscript.PubKeyTy:
		return RawAddress{Kind: KindP2PK, Hash: hash160Of(addr)}
	case txscript.PubKeyHashTy:
		return RawAddress{Kind: KindP2PKH, Hash: hash160Of(addr)}
	case txscript.ScriptHashTy:
		return RawAddress{Kind: KindP2SH, Hash: hash160Of(addr)}
	case txscript.WitnessV0PubKeyHashTy:
		return RawAddress{Kind: KindP2WPKH, Hash: hash160Of(addr)}
	case txscript.WitnessV0ScriptHashTy:
		return RawAddress{Kind: KindP2WSH, Hash: hash256Of(addr)}
	case txscript.WitnessV1TaprootTy:
		return RawAddress{Kind: KindP2TR, Hash: hash256Of(addr)}
	default:
		return c.nextUnknown()
	}
}

// canonicalizeMultisig strips push-data length prefixes variance by simply
// keeping the raw script bytes: two semantically-identical multisig scripts
// produced by the same signer set serialize identically, which is all the
// dedup key needs.
func canonicalizeMultisig(pkScript []byte) []byte {
	out := make([]byte, len(pkScript))
	copy(out, pkScript)
	return out
}

func hash160Of(addr interface{ ScriptAddress() []byte }) []byte {
	b := addr.ScriptAddress()
	out := make([]byte, 20)
	copy(out, b)
	return out
}

func hash256Of(addr interface{ ScriptAddress() []byte }) []byte {
	b := addr.ScriptAddress()
	out := make([]byte, 32)
	copy(out, b)
	return out
}

func (c *Classifier) nextUnknown() RawAddress {
	return RawAddress{Kind: KindUnknown, Hash: counterBytes(c.unknownCount.Add(1))}
}

func (c *Classifier) nextEmpty() RawAddress {
	return RawAddress{Kind: KindEmpty, Hash: counterBytes(c.emptyCount.Add(1))}
}

func counterBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
