package script

// BuildP2PKHScriptPubKey builds the standard lock script for a 20-byte
// public-key hash (§4.4): OP_DUP OP_HASH160 <push addr-bytes> OP_EQUALVERIFY OP_CHECKSIG.
func BuildP2PKHScriptPubKey(pubKeyHash [20]byte) []byte {
	script := make([]byte, 0, 2+1+20+2)
	script = append(script, byte(OP_DUP), byte(OP_HASH160))
	script = append(script, byte(len(pubKeyHash)))
	script = append(script, pubKeyHash[:]...)
	script = append(script, byte(OP_EQUALVERIFY), byte(OP_CHECKSIG))
	return script
}

// BuildP2PKHScriptSig builds the standard unlock script: <push sig> <push pubkey>.
func BuildP2PKHScriptSig(signature, pubKey []byte) ([]byte, error) {
	sigPush, err := pushData(signature)
	if err != nil {
		return nil, err
	}
	pubKeyPush, err := pushData(pubKey)
	if err != nil {
		return nil, err
	}
	script := make([]byte, 0, len(sigPush)+len(pubKeyPush))
	script = append(script, sigPush...)
	script = append(script, pubKeyPush...)
	return script, nil
}

// pushData encodes data as an inline push-data instruction. DER
// signatures and compressed pubkeys both fit comfortably under the
// pushDataMax single-byte length limit.
func pushData(data []byte) ([]byte, error) {
	if len(data) > pushDataMax {
		return nil, ErrPushOutOfBounds
	}
	out := make([]byte, 0, 1+len(data))
	out = append(out, byte(len(data)))
	out = append(out, data...)
	return out, nil
}
