package rawaddress

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
)

func TestKindStringNames(t *testing.T) {
	cases := map[Kind]string{
		KindP2PK: "p2pk", KindP2PKH: "p2pkh", KindP2SH: "p2sh",
		KindP2WPKH: "p2wpkh", KindP2WSH: "p2wsh", KindP2TR: "p2tr",
		KindMultisig: "multisig", KindUnknown: "unknown", KindEmpty: "empty",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestKindFixedLength(t *testing.T) {
	fixed := []Kind{KindP2PK, KindP2PKH, KindP2SH, KindP2WPKH, KindP2WSH, KindP2TR}
	for _, k := range fixed {
		if !k.FixedLength() {
			t.Errorf("%s should be fixed-length", k)
		}
	}
	variable := []Kind{KindMultisig, KindUnknown, KindEmpty}
	for _, k := range variable {
		if k.FixedLength() {
			t.Errorf("%s should not be fixed-length", k)
		}
	}
}

func TestRawAddressKeyEncodesKindTag(t *testing.T) {
	addr := RawAddress{Kind: KindP2WPKH, Hash: []byte{1, 2, 3}}
	key := addr.Key()
	if key[0] != byte(KindP2WPKH) {
		t.Fatalf("Key()[0] = %d, want %d", key[0], byte(KindP2WPKH))
	}
	if !bytes.Equal(key[1:], addr.Hash) {
		t.Fatalf("Key()[1:] = %v, want %v", key[1:], addr.Hash)
	}
}

func TestClassifyOpReturnIsEmpty(t *testing.T) {
	c := NewClassifier(&chaincfg.MainNetParams)
	addr := c.Classify(nil, false, true)
	if addr.Kind != KindEmpty {
		t.Fatalf("Classify(op_return) = %v, want KindEmpty", addr.Kind)
	}
}

func TestClassifyProvablyUnspendableIsEmpty(t *testing.T) {
	c := NewClassifier(&chaincfg.MainNetParams)
	addr := c.Classify([]byte{0x51}, true, false)
	if addr.Kind != KindEmpty {
		t.Fatalf("Classify(provably unspendable) = %v, want KindEmpty", addr.Kind)
	}
}

func TestClassifyEmptyScriptIsEmpty(t *testing.T) {
	c := NewClassifier(&chaincfg.MainNetParams)
	addr := c.Classify([]byte{}, false, false)
	if addr.Kind != KindEmpty {
		t.Fatalf("Classify(empty script) = %v, want KindEmpty", addr.Kind)
	}
}

func TestClassifyUnparseableScriptIsUnknown(t *testing.T) {
	c := NewClassifier(&chaincfg.MainNetParams)
	// An OP_RETURN-led script passed without the unspendable/op_return
	// flags: it yields no address, so it falls back to Unknown.
	addr := c.Classify([]byte{0x6a, 0x01, 0x02, 0x03}, false, false)
	if addr.Kind != KindUnknown {
		t.Fatalf("Classify(garbage script) = %v, want KindUnknown", addr.Kind)
	}
}

func TestClassifyAllocatesDistinctUnknownCounters(t *testing.T) {
	c := NewClassifier(&chaincfg.MainNetParams)
	a := c.nextUnknown()
	b := c.nextUnknown()
	if bytes.Equal(a.Hash, b.Hash) {
		t.Fatal("successive nextUnknown() calls should allocate distinct counters")
	}
}
