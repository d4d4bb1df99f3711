package market

import (
	"encoding/binary"

	"LineageMarket/internal/ids"
)

// Pebble key prefixes. Integer components are big-endian so keys sort numerically.
var (
	workerPrefix     = []byte("w:")  // w: + worker → Worker
	votePrefix       = []byte("wv:") // wv: + worker + verifier → vote
	verifierPrefix   = []byte("v:")  // v: + verifier → registered
	oraclePrefix     = []byte("o:")  // o: + oracle → registered
	repPrefix        = []byte("p:")  // p: + rep → registered
	assetPrefix      = []byte("a:")  // a: + asset → Asset
	verifiedPrefix   = []byte("av:") // av: + asset → verified flag
	taskPrefix       = []byte("t:")  // t: + task → Task
	openTaskPrefix   = []byte("ta:") // ta: + asset → open task id
	auctionPrefix    = []byte("au:") // au: + auction → Auction
	assetSalePrefix  = []byte("aa:") // aa: + asset → latest auction id
	openSalePrefix   = []byte("sp:") // sp: + seller + auction → unsettled sale
	bidEscrowPrefix  = []byte("e:")  // e: + bidder + auction → escrowed amount
	deliveryPrefix   = []byte("dl:") // dl: + asset + round → Delivery
	submissionPrefix = []byte("ds:") // ds: + asset + round + rep → DeliverySubmission
	balancePrefix    = []byte("b:")  // b: + address → escrow balance
	callPrefix       = []byte("n:")  // n: + call hash → applied marker
	metaPrefix       = []byte("m:")  // m: + name → counter
)

// Counter names under metaPrefix.
const (
	metaAssetSeq      = "asset_seq"
	metaTaskSeq       = "task_seq"
	metaAuctionSeq    = "auction_seq"
	metaVerifierCount = "verifiers"
)

// makeKey concatenates a prefix and components.
func makeKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}

	key := make([]byte, 0, size)
	key = append(key, prefix...)

	for _, p := range parts {
		key = append(key, p...)
	}

	return key
}

// u64 encodes v big-endian.
func u64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)

	return b[:]
}

func addrKey(prefix []byte, a ids.Address) []byte {
	return makeKey(prefix, a[:])
}

func idKey(prefix []byte, id uint64) []byte {
	return makeKey(prefix, u64(id))
}

func voteKey(worker, verifier ids.Address) []byte {
	return makeKey(votePrefix, worker[:], verifier[:])
}

func bidEscrowKey(bidder ids.Address, auction AuctionID) []byte {
	return makeKey(bidEscrowPrefix, bidder[:], u64(uint64(auction)))
}

func openSaleKey(seller ids.Address, auction AuctionID) []byte {
	return makeKey(openSalePrefix, seller[:], u64(uint64(auction)))
}

func deliveryKey(asset AssetID, round AuctionID) []byte {
	return makeKey(deliveryPrefix, u64(uint64(asset)), u64(uint64(round)))
}

func submissionKey(asset AssetID, round AuctionID, rep ids.Address) []byte {
	return makeKey(submissionPrefix, u64(uint64(asset)), u64(uint64(round)), rep[:])
}

func metaKey(name string) []byte {
	return makeKey(metaPrefix, []byte(name))
}
