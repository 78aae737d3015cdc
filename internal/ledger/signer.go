package ledger

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"math/rand"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// txExpiration is how many blocks past the reference a transaction stays valid.
const txExpiration = 32

// Clause is a single value transfer within a transaction. Data carries the
// proof annotation payload.
type Clause struct {
	To    string `json:"to"`
	Value string `json:"value"` // minor units, decimal string
	Data  string `json:"data,omitempty"`
}

// txBody is the canonical pre-signature transaction encoding.
type txBody struct {
	BlockRef   string   `json:"blockRef"`
	Expiration uint64   `json:"expiration"`
	Clauses    []Clause `json:"clauses"`
	Nonce      uint64   `json:"nonce"`
	Origin     string   `json:"origin"`
}

// SignedTx is a ledger-ready transaction. ID is the blake2b hash of the
// canonical body; Raw is the encoded body plus signature.
type SignedTx struct {
	ID        string
	Origin    string
	Raw       []byte
	Signature []byte
}

// Signer holds the distributor's private key material and produces signed,
// ledger-ready transfers. The key never leaves the signer.
//
// Nonce assignment is serialized under a mutex: two concurrently signed
// transactions can never collide on the same nonce. Every call consumes a
// fresh nonce, so retries of the same logical leg always produce a distinct
// transaction ID.
type Signer struct {
	key     ed25519.PrivateKey
	address string

	mu    sync.Mutex
	nonce uint64
}

// NewSigner builds a signer from an opaque hex credential (a 64-char hex
// string, the ed25519 seed). Returns ErrBadKey for malformed material.
func NewSigner(hexKey string) (*Signer, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("%w: empty key", ErrBadKey)
	}
	seed, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: not hex encoded", ErrBadKey)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrBadKey, ed25519.SeedSize, len(seed))
	}

	key := ed25519.NewKeyFromSeed(seed)
	return &Signer{
		key:     key,
		address: deriveAddress(key.Public().(ed25519.PublicKey)),
		// Random starting nonce; the counter only has to be unique per
		// process lifetime, the ledger pairs it with the block reference.
		nonce: rand.Uint64(),
	}, nil
}

// Address returns the distributor's own ledger address.
func (s *Signer) Address() string {
	return s.address
}

// Sign produces a fresh signed transfer of amount minor units to destination,
// anchored at ref, with proof attached as clause data. Each call consumes the
// next nonce.
func (s *Signer) Sign(ref BlockRef, destination string, amount *big.Int, proof []byte) (*SignedTx, error) {
	if s == nil || len(s.key) == 0 {
		return nil, fmt.Errorf("%w: signer not initialized", ErrBadKey)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("cannot sign non-positive transfer of %v", amount)
	}

	s.mu.Lock()
	nonce := s.nonce
	s.nonce++
	s.mu.Unlock()

	body := txBody{
		BlockRef:   ref.ID,
		Expiration: txExpiration,
		Clauses: []Clause{{
			To:    destination,
			Value: amount.String(),
			Data:  hex.EncodeToString(proof),
		}},
		Nonce:  nonce,
		Origin: s.address,
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	hash := blake2b.Sum256(raw)
	sig := ed25519.Sign(s.key, hash[:])

	return &SignedTx{
		ID:        "0x" + hex.EncodeToString(hash[:]),
		Origin:    s.address,
		Raw:       raw,
		Signature: sig,
	}, nil
}

// deriveAddress maps a public key to a 20-byte hex ledger address.
func deriveAddress(pub ed25519.PublicKey) string {
	hash := blake2b.Sum256(pub)
	return "0x" + hex.EncodeToString(hash[12:32])
}
