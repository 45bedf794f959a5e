package txbuilder

import (
	"fmt"

	"github.com/mr-tron/base58"

	"solana-checkout/internal/solana"
)

// MessageHeader counts the signer and readonly sections of the account list.
type MessageHeader struct {
	NumRequiredSignatures       byte
	NumReadonlySignedAccounts   byte
	NumReadonlyUnsignedAccounts byte
}

// CompiledInstruction references accounts by index into the message key list.
type CompiledInstruction struct {
	ProgramIDIndex byte
	AccountIndexes []byte
	Data           []byte
}

// Message is a legacy Solana transaction message. Account keys are ordered
// writable signers, readonly signers, writable non-signers, readonly
// non-signers; the fee payer is always first.
type Message struct {
	Header          MessageHeader
	AccountKeys     []string
	RecentBlockhash string
	Instructions    []CompiledInstruction
}

// CompileMessage assembles a message from uncompiled instructions. The fee
// payer is forced to the front of the account list as a writable signer.
func CompileMessage(feePayer, recentBlockhash string, instructions []Instruction) (*Message, error) {
	if feePayer == "" {
		return nil, fmt.Errorf("fee payer required")
	}

	type meta struct {
		signer   bool
		writable bool
	}
	metas := map[string]*meta{
		feePayer: {signer: true, writable: true},
	}
	order := []string{feePayer}

	note := func(pubkey string, signer, writable bool) {
		m, ok := metas[pubkey]
		if !ok {
			m = &meta{}
			metas[pubkey] = m
			order = append(order, pubkey)
		}
		m.signer = m.signer || signer
		m.writable = m.writable || writable
	}

	for _, instr := range instructions {
		for _, acct := range instr.Accounts {
			note(acct.Pubkey, acct.IsSigner, acct.IsWritable)
		}
		note(instr.ProgramID, false, false)
	}

	// Partition into the four sections, preserving first-seen order within
	// each. The fee payer stays first because it leads the order slice and
	// lands in the first section.
	var writableSigners, readonlySigners, writableOthers, readonlyOthers []string
	for _, pubkey := range order {
		m := metas[pubkey]
		switch {
		case m.signer && m.writable:
			writableSigners = append(writableSigners, pubkey)
		case m.signer:
			readonlySigners = append(readonlySigners, pubkey)
		case m.writable:
			writableOthers = append(writableOthers, pubkey)
		default:
			readonlyOthers = append(readonlyOthers, pubkey)
		}
	}

	keys := make([]string, 0, len(order))
	keys = append(keys, writableSigners...)
	keys = append(keys, readonlySigners...)
	keys = append(keys, writableOthers...)
	keys = append(keys, readonlyOthers...)

	if len(keys) > 255 {
		return nil, fmt.Errorf("too many accounts: %d", len(keys))
	}

	index := make(map[string]byte, len(keys))
	for i, k := range keys {
		index[k] = byte(i)
	}

	msg := &Message{
		Header: MessageHeader{
			NumRequiredSignatures:       byte(len(writableSigners) + len(readonlySigners)),
			NumReadonlySignedAccounts:   byte(len(readonlySigners)),
			NumReadonlyUnsignedAccounts: byte(len(readonlyOthers)),
		},
		AccountKeys:     keys,
		RecentBlockhash: recentBlockhash,
	}

	for _, instr := range instructions {
		compiled := CompiledInstruction{
			ProgramIDIndex: index[instr.ProgramID],
			Data:           instr.Data,
		}
		for _, acct := range instr.Accounts {
			compiled.AccountIndexes = append(compiled.AccountIndexes, index[acct.Pubkey])
		}
		msg.Instructions = append(msg.Instructions, compiled)
	}

	return msg, nil
}

// Decompile maps the compiled instructions back to address-based form,
// deriving each account's signer/writable flags from its section in the
// key list. Used when new instructions must be merged into a decoded
// message: the combined set is recompiled from scratch.
func (m *Message) Decompile() ([]Instruction, error) {
	instructions := make([]Instruction, 0, len(m.Instructions))
	for _, compiled := range m.Instructions {
		if int(compiled.ProgramIDIndex) >= len(m.AccountKeys) {
			return nil, fmt.Errorf("program index %d out of range", compiled.ProgramIDIndex)
		}
		instr := Instruction{
			ProgramID: m.AccountKeys[compiled.ProgramIDIndex],
			Data:      compiled.Data,
		}
		for _, idx := range compiled.AccountIndexes {
			if int(idx) >= len(m.AccountKeys) {
				return nil, fmt.Errorf("account index %d out of range", idx)
			}
			instr.Accounts = append(instr.Accounts, AccountMeta{
				Pubkey:     m.AccountKeys[idx],
				IsSigner:   m.isSigner(idx),
				IsWritable: m.isWritable(idx),
			})
		}
		instructions = append(instructions, instr)
	}
	return instructions, nil
}

func (m *Message) isSigner(idx byte) bool {
	return idx < m.Header.NumRequiredSignatures
}

func (m *Message) isWritable(idx byte) bool {
	numSigners := m.Header.NumRequiredSignatures
	if idx < numSigners {
		return idx < numSigners-m.Header.NumReadonlySignedAccounts
	}
	return int(idx) < len(m.AccountKeys)-int(m.Header.NumReadonlyUnsignedAccounts)
}

// FeePayer returns the first account key, which holds the fee payer slot.
func (m *Message) FeePayer() string {
	if len(m.AccountKeys) == 0 {
		return ""
	}
	return m.AccountKeys[0]
}

// Serialize encodes the message in the legacy wire format.
func (m *Message) Serialize() ([]byte, error) {
	buf := []byte{
		m.Header.NumRequiredSignatures,
		m.Header.NumReadonlySignedAccounts,
		m.Header.NumReadonlyUnsignedAccounts,
	}

	buf = encodeCompactU16(buf, len(m.AccountKeys))
	for _, key := range m.AccountKeys {
		raw, err := solana.DecodeAddress(key)
		if err != nil {
			return nil, fmt.Errorf("account key: %w", err)
		}
		buf = append(buf, raw...)
	}

	blockhash, err := base58.Decode(m.RecentBlockhash)
	if err != nil {
		return nil, fmt.Errorf("decode blockhash: %w", err)
	}
	if len(blockhash) != 32 {
		return nil, fmt.Errorf("blockhash decodes to %d bytes, want 32", len(blockhash))
	}
	buf = append(buf, blockhash...)

	buf = encodeCompactU16(buf, len(m.Instructions))
	for _, instr := range m.Instructions {
		buf = append(buf, instr.ProgramIDIndex)
		buf = encodeCompactU16(buf, len(instr.AccountIndexes))
		buf = append(buf, instr.AccountIndexes...)
		buf = encodeCompactU16(buf, len(instr.Data))
		buf = append(buf, instr.Data...)
	}

	return buf, nil
}

// DeserializeMessage decodes a legacy message. Versioned messages (v0 with
// address lookup tables) are rejected; swap payloads are requested in
// legacy form.
func DeserializeMessage(data []byte) (*Message, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("message too short")
	}
	if data[0]&0x80 != 0 {
		return nil, fmt.Errorf("versioned message not supported (version %d)", data[0]&0x7f)
	}

	msg := &Message{
		Header: MessageHeader{
			NumRequiredSignatures:       data[0],
			NumReadonlySignedAccounts:   data[1],
			NumReadonlyUnsignedAccounts: data[2],
		},
	}
	pos := 3

	numKeys, n, err := decodeCompactU16(data[pos:])
	if err != nil {
		return nil, fmt.Errorf("account count: %w", err)
	}
	pos += n

	for i := 0; i < numKeys; i++ {
		if pos+32 > len(data) {
			return nil, fmt.Errorf("truncated account key %d", i)
		}
		msg.AccountKeys = append(msg.AccountKeys, base58.Encode(data[pos:pos+32]))
		pos += 32
	}

	if pos+32 > len(data) {
		return nil, fmt.Errorf("truncated blockhash")
	}
	msg.RecentBlockhash = base58.Encode(data[pos : pos+32])
	pos += 32

	numInstrs, n, err := decodeCompactU16(data[pos:])
	if err != nil {
		return nil, fmt.Errorf("instruction count: %w", err)
	}
	pos += n

	for i := 0; i < numInstrs; i++ {
		if pos >= len(data) {
			return nil, fmt.Errorf("truncated instruction %d", i)
		}
		instr := CompiledInstruction{ProgramIDIndex: data[pos]}
		pos++

		numAccts, n, err := decodeCompactU16(data[pos:])
		if err != nil {
			return nil, fmt.Errorf("instruction %d accounts: %w", i, err)
		}
		pos += n
		if pos+numAccts > len(data) {
			return nil, fmt.Errorf("truncated instruction %d accounts", i)
		}
		instr.AccountIndexes = append(instr.AccountIndexes, data[pos:pos+numAccts]...)
		pos += numAccts

		dataLen, n, err := decodeCompactU16(data[pos:])
		if err != nil {
			return nil, fmt.Errorf("instruction %d data: %w", i, err)
		}
		pos += n
		if pos+dataLen > len(data) {
			return nil, fmt.Errorf("truncated instruction %d data", i)
		}
		instr.Data = append(instr.Data, data[pos:pos+dataLen]...)
		pos += dataLen

		msg.Instructions = append(msg.Instructions, instr)
	}

	return msg, nil
}
