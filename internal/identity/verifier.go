// Package identity implements proof-of-identity for addresses and room
// password hashing.
//
// Address ownership is proven with an EIP-191 personal_sign signature over a
// canonical action message. The message is deterministically derivable by the
// client from the request fields, so a signature for one action cannot be
// replayed for another.
package identity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// CreateUserMessage is the canonical message signed when creating an account.
func CreateUserMessage(username string) string {
	return fmt.Sprintf("Create account with username: %s", username)
}

// LoginMessage is the canonical message signed when logging into a room.
func LoginMessage(roomID int64, address string) string {
	return fmt.Sprintf("Login to room with id: %d and address: %s", roomID, address)
}

// IsValidAddress reports whether s is a well-formed hex address.
func IsValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// Verify reports whether signature was produced over message by the private
// key controlling address. Malformed input of any kind yields false, never an
// error: this is the sole gate for user creation and room login and it fails
// closed.
func Verify(address, message, signature string) bool {
	if !common.IsHexAddress(address) {
		return false
	}

	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}

	// personal_sign encodes V as 27/28; SigToPub wants 0/1.
	if sig[crypto.RecoveryIDOffset] == 27 || sig[crypto.RecoveryIDOffset] == 28 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return false
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return false
	}

	recovered := crypto.PubkeyToAddress(*pub)
	return recovered == common.HexToAddress(address)
}
