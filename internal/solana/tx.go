package solana

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// Native program IDs used in transaction construction.
const (
	SystemProgram        = "11111111111111111111111111111111"
	ComputeBudgetProgram = "ComputeBudget111111111111111111111111111111"
)

// signatureLen is the byte length of an ed25519 signature.
const signatureLen = 64

// Signer signs transaction messages. The pipeline never holds raw private
// key material; signing is delegated to the wallet collaborator.
type Signer interface {
	// PublicKey returns the signer's base58 public key (the fee payer).
	PublicKey() string

	// Sign returns the ed25519 signature over the serialized message.
	Sign(ctx context.Context, message []byte) ([]byte, error)
}

// AccountMeta describes one account referenced by an instruction.
type AccountMeta struct {
	Pubkey     string
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID string
	Accounts  []AccountMeta
	Data      []byte
}

// SystemTransfer builds a System program lamport transfer instruction.
// Data layout: u32 instruction index (2 = Transfer) + u64 lamports, little endian.
func SystemTransfer(from, to string, lamports uint64) Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], 2)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	return Instruction{
		ProgramID: SystemProgram,
		Accounts: []AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: to, IsWritable: true},
		},
		Data: data,
	}
}

// ComputeUnitLimit builds a ComputeBudget SetComputeUnitLimit instruction.
func ComputeUnitLimit(units uint32) Instruction {
	data := make([]byte, 5)
	data[0] = 2 // SetComputeUnitLimit
	binary.LittleEndian.PutUint32(data[1:5], units)
	return Instruction{ProgramID: ComputeBudgetProgram, Data: data}
}

// ComputeUnitPrice builds a ComputeBudget SetComputeUnitPrice instruction.
// The price is the priority fee, in micro-lamports per compute unit.
func ComputeUnitPrice(microLamports uint64) Instruction {
	data := make([]byte, 9)
	data[0] = 3 // SetComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:9], microLamports)
	return Instruction{ProgramID: ComputeBudgetProgram, Data: data}
}

// TxBuilder assembles a legacy Solana transaction message.
type TxBuilder struct {
	feePayer     string
	instructions []Instruction
}

// NewTxBuilder creates a builder with the given fee payer.
func NewTxBuilder(feePayer string) *TxBuilder {
	return &TxBuilder{feePayer: feePayer}
}

// Add appends instructions in execution order.
func (b *TxBuilder) Add(ins ...Instruction) *TxBuilder {
	b.instructions = append(b.instructions, ins...)
	return b
}

// compiledKey tracks merged signer/writable flags for one account.
type compiledKey struct {
	pubkey   string
	signer   bool
	writable bool
}

// compileKeys deduplicates accounts and orders them per the message format:
// writable signers, readonly signers, writable non-signers, readonly non-signers.
// The fee payer is always the first writable signer.
func (b *TxBuilder) compileKeys() []compiledKey {
	index := make(map[string]int)
	var keys []compiledKey

	upsert := func(pubkey string, signer, writable bool) {
		if i, ok := index[pubkey]; ok {
			keys[i].signer = keys[i].signer || signer
			keys[i].writable = keys[i].writable || writable
			return
		}
		index[pubkey] = len(keys)
		keys = append(keys, compiledKey{pubkey: pubkey, signer: signer, writable: writable})
	}

	upsert(b.feePayer, true, true)
	for _, ins := range b.instructions {
		for _, a := range ins.Accounts {
			upsert(a.Pubkey, a.IsSigner, a.IsWritable)
		}
		upsert(ins.ProgramID, false, false)
	}

	rank := func(k compiledKey) int {
		switch {
		case k.pubkey == b.feePayer:
			return 0
		case k.signer && k.writable:
			return 1
		case k.signer:
			return 2
		case k.writable:
			return 3
		default:
			return 4
		}
	}

	// Stable insertion-order sort by rank
	ordered := make([]compiledKey, 0, len(keys))
	for r := 0; r <= 4; r++ {
		for _, k := range keys {
			if rank(k) == r {
				ordered = append(ordered, k)
			}
		}
	}
	return ordered
}

// BuildMessage serializes the legacy transaction message for the given blockhash.
func (b *TxBuilder) BuildMessage(recentBlockhash string) ([]byte, error) {
	if len(b.instructions) == 0 {
		return nil, fmt.Errorf("no instructions")
	}

	keys := b.compileKeys()
	keyIndex := make(map[string]byte, len(keys))
	for i, k := range keys {
		if i > 255 {
			return nil, fmt.Errorf("too many accounts: %d", len(keys))
		}
		keyIndex[k.pubkey] = byte(i)
	}

	var numSigners, numReadonlySigned, numReadonlyUnsigned byte
	for _, k := range keys {
		if k.signer {
			numSigners++
			if !k.writable {
				numReadonlySigned++
			}
		} else if !k.writable {
			numReadonlyUnsigned++
		}
	}

	blockhash, err := base58.Decode(recentBlockhash)
	if err != nil {
		return nil, fmt.Errorf("decode blockhash: %w", err)
	}
	if len(blockhash) != 32 {
		return nil, fmt.Errorf("blockhash: expected 32 bytes, got %d", len(blockhash))
	}

	var msg []byte
	msg = append(msg, numSigners, numReadonlySigned, numReadonlyUnsigned)

	msg = appendCompactU16(msg, len(keys))
	for _, k := range keys {
		kb, err := DecodePubkey(k.pubkey)
		if err != nil {
			return nil, err
		}
		msg = append(msg, kb...)
	}

	msg = append(msg, blockhash...)

	msg = appendCompactU16(msg, len(b.instructions))
	for _, ins := range b.instructions {
		msg = append(msg, keyIndex[ins.ProgramID])
		msg = appendCompactU16(msg, len(ins.Accounts))
		for _, a := range ins.Accounts {
			msg = append(msg, keyIndex[a.Pubkey])
		}
		msg = appendCompactU16(msg, len(ins.Data))
		msg = append(msg, ins.Data...)
	}

	return msg, nil
}

// SignedTx is a fully signed, serialized transaction.
type SignedTx struct {
	Signature  string // base58 signature, doubles as the tx identifier
	Serialized []byte
}

// Base64 returns the wire encoding accepted by sendTransaction.
func (t *SignedTx) Base64() string {
	return base64.StdEncoding.EncodeToString(t.Serialized)
}

// Base58 returns the encoding accepted by bundle relays.
func (t *SignedTx) Base58() string {
	return base58.Encode(t.Serialized)
}

// Sign builds the message, signs it with the single fee-payer signer, and
// produces the serialized transaction (compact signature array + message).
func (b *TxBuilder) Sign(ctx context.Context, signer Signer, recentBlockhash string) (*SignedTx, error) {
	msg, err := b.BuildMessage(recentBlockhash)
	if err != nil {
		return nil, err
	}

	sig, err := signer.Sign(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	if len(sig) != signatureLen {
		return nil, fmt.Errorf("signature: expected %d bytes, got %d", signatureLen, len(sig))
	}

	var tx []byte
	tx = appendCompactU16(tx, 1)
	tx = append(tx, sig...)
	tx = append(tx, msg...)

	return &SignedTx{
		Signature:  base58.Encode(sig),
		Serialized: tx,
	}, nil
}

// appendCompactU16 appends a compact-u16 (shortvec) encoded length.
func appendCompactU16(out []byte, n int) []byte {
	for {
		if n < 0x80 {
			return append(out, byte(n))
		}
		out = append(out, byte(n&0x7f)|0x80)
		n >>= 7
	}
}
