package script

import (
	"github.com/Klingon-tech/klingnet-chain/errs"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
)

// ErrStackUnderflow, ErrEqualVerifyFailed and ErrUnknownOpcode are
// internal execution failures. Execute never returns them directly —
// any of them collapses to a false result, matching the "no partial
// mutation on error" rule in §4.4.
var (
	ErrStackUnderflow    = errs.New(errs.Script, "stack underflow")
	ErrEqualVerifyFailed = errs.New(errs.Script, "OP_EQUALVERIFY mismatch")
	ErrUnknownOpcode     = errs.New(errs.Script, "unknown opcode")
	ErrPushOutOfBounds   = errs.New(errs.Script, "PUSHDATA out of bounds")
	ErrMissingVerifier   = errs.New(errs.Script, "OP_CHECKSIG invoked without a verifier")
)

// Verifier checks a signature against a public key for the input the
// script engine is currently authorizing. It is the caller's
// responsibility to close over the transaction and input index so the
// correct signature-preimage digest (§4.2) is checked.
type Verifier func(signature, pubKey []byte) bool

// Execute runs script_sig then script_pubkey over a single stack
// machine (§4.4). Any error — stack underflow, an EQUALVERIFY
// mismatch, an unknown opcode, or a bad signature — yields a plain
// false result with no partial mutation visible to the caller. On
// success the top of stack must be non-empty and not all-zero.
func Execute(scriptSig, scriptPubKey []byte, verify Verifier) bool {
	e := &engine{verify: verify}

	full := make([]byte, 0, len(scriptSig)+len(scriptPubKey))
	full = append(full, scriptSig...)
	full = append(full, scriptPubKey...)

	if err := e.run(full); err != nil {
		return false
	}

	if len(e.stack) == 0 {
		return false
	}
	return isTruthy(e.stack[len(e.stack)-1])
}

type engine struct {
	stack  [][]byte
	verify Verifier
}

func (e *engine) run(script []byte) error {
	pointer := 0
	for pointer < len(script) {
		op := script[pointer]

		if op >= pushDataMin && op <= pushDataMax {
			n := int(op)
			if pointer+1+n > len(script) {
				return ErrPushOutOfBounds
			}
			e.push(script[pointer+1 : pointer+1+n])
			pointer += 1 + n
			continue
		}

		pointer++
		if err := e.step(Opcode(op)); err != nil {
			return err
		}
	}
	return nil
}

func (e *engine) step(op Opcode) error {
	switch op {
	case OP_0:
		e.push(nil)
	case OP_TRUE:
		e.push([]byte{0x01})
	case OP_DROP:
		_, err := e.pop()
		return err
	case OP_DUP:
		top, err := e.pop()
		if err != nil {
			return err
		}
		e.push(top)
		e.push(top)
	case OP_EQUAL:
		a, err := e.pop()
		if err != nil {
			return err
		}
		b, err := e.pop()
		if err != nil {
			return err
		}
		if bytesEqual(a, b) {
			e.push([]byte{0x01})
		} else {
			e.push(nil)
		}
	case OP_EQUALVERIFY:
		a, err := e.pop()
		if err != nil {
			return err
		}
		b, err := e.pop()
		if err != nil {
			return err
		}
		if !bytesEqual(a, b) {
			return ErrEqualVerifyFailed
		}
	case OP_HASH160:
		top, err := e.pop()
		if err != nil {
			return err
		}
		h := crypto.HASH160(top)
		e.push(h[:])
	case OP_CHECKSIG:
		pubKey, err := e.pop()
		if err != nil {
			return err
		}
		sig, err := e.pop()
		if err != nil {
			return err
		}
		if e.verify == nil {
			return ErrMissingVerifier
		}
		if e.verify(sig, pubKey) {
			e.push([]byte{0x01})
		} else {
			e.push(nil)
		}
	default:
		return ErrUnknownOpcode
	}
	return nil
}

func (e *engine) push(data []byte) {
	e.stack = append(e.stack, data)
}

func (e *engine) pop() ([]byte, error) {
	if len(e.stack) == 0 {
		return nil, ErrStackUnderflow
	}
	top := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return top, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// isTruthy reports whether data counts as a successful top-of-stack
// value: non-empty and not all-zero.
func isTruthy(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	for _, b := range data {
		if b != 0 {
			return true
		}
	}
	return false
}
