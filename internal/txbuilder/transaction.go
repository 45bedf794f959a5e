package txbuilder

import (
	"encoding/base64"
	"fmt"
)

const signatureLength = 64

// UnsignedTransaction is a fully assembled transaction awaiting signatures.
// Signature slots are zero-filled until a wallet fills them in.
type UnsignedTransaction struct {
	Message *Message
}

// DeserializeTransaction decodes a base64 legacy transaction, discarding
// any signatures it carries. Swap-service payloads arrive unsigned with
// zero-filled signature slots.
func DeserializeTransaction(rawBase64 string) (*UnsignedTransaction, error) {
	data, err := base64.StdEncoding.DecodeString(rawBase64)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}

	numSigs, n, err := decodeCompactU16(data)
	if err != nil {
		return nil, fmt.Errorf("signature count: %w", err)
	}
	pos := n + numSigs*signatureLength
	if pos > len(data) {
		return nil, fmt.Errorf("truncated signatures")
	}

	msg, err := DeserializeMessage(data[pos:])
	if err != nil {
		return nil, err
	}

	return &UnsignedTransaction{Message: msg}, nil
}

// Serialize encodes the transaction with zero-filled signature slots, one
// per required signer.
func (t *UnsignedTransaction) Serialize() ([]byte, error) {
	msgBytes, err := t.Message.Serialize()
	if err != nil {
		return nil, err
	}

	numSigs := int(t.Message.Header.NumRequiredSignatures)
	buf := encodeCompactU16(nil, numSigs)
	buf = append(buf, make([]byte, numSigs*signatureLength)...)
	buf = append(buf, msgBytes...)
	return buf, nil
}

// SerializeBase64 returns the wire form encoded as base64.
func (t *UnsignedTransaction) SerializeBase64() (string, error) {
	raw, err := t.Serialize()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// SignedTransaction carries filled signature slots ahead of the message.
type SignedTransaction struct {
	Signatures [][]byte
	Message    *Message
}

// Serialize encodes the signed transaction in wire format.
func (t *SignedTransaction) Serialize() ([]byte, error) {
	if len(t.Signatures) != int(t.Message.Header.NumRequiredSignatures) {
		return nil, fmt.Errorf("have %d signatures, need %d",
			len(t.Signatures), t.Message.Header.NumRequiredSignatures)
	}

	msgBytes, err := t.Message.Serialize()
	if err != nil {
		return nil, err
	}

	buf := encodeCompactU16(nil, len(t.Signatures))
	for i, sig := range t.Signatures {
		if len(sig) != signatureLength {
			return nil, fmt.Errorf("signature %d is %d bytes, want %d", i, len(sig), signatureLength)
		}
		buf = append(buf, sig...)
	}
	buf = append(buf, msgBytes...)
	return buf, nil
}

// SerializeBase64 returns the wire form encoded as base64 for submission.
func (t *SignedTransaction) SerializeBase64() (string, error) {
	raw, err := t.Serialize()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
