package drybox

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/Icing-Project/DryBox/kernel/keys"
)

// writePubkeysFile writes pubkeys.txt: hex-encoded public keys and short
// key_ids for both sides, per spec.md §6. priv never appears here.
func writePubkeysFile(path string, left, right *keys.Material) error {
	content := fmt.Sprintf(
		"left_pub=%s\nleft_key_id=%s\nright_pub=%s\nright_key_id=%s\n",
		hex.EncodeToString(left.Pub[:]), left.KeyID,
		hex.EncodeToString(right.Pub[:]), right.KeyID,
	)
	return os.WriteFile(path, []byte(content), 0o644)
}
