package schedule

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Ids inside an option derive from (session seed, rank, block index) so a
// rerun with the same inputs reproduces them exactly.

func optionID(sessionSeed string, rank int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|option|%d", sessionSeed, rank)))
	return "opt-" + hex.EncodeToString(sum[:12])
}

func blockID(sessionSeed string, rank, blockIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|block|%d|%d", sessionSeed, rank, blockIndex)))
	return "blk-" + hex.EncodeToString(sum[:12])
}

func assignIdentifiers(opt *Option, sessionSeed string, rank int) {
	opt.Rank = rank
	opt.ID = optionID(sessionSeed, rank)
	for i := range opt.Blocks {
		opt.Blocks[i].ID = blockID(sessionSeed, rank, i)
		opt.Blocks[i].OptionID = opt.ID
	}
}
