package voting

import (
	bls12381 "github.com/kilic/bls12-381"

	"github.com/dashpay/drive-platform/internal/errs"
)

// VerifyMasternodeVote checks a BLS signature over a vote's canonical
// bytes against a masternode quorum public key, modeled as a single
// pairing check e(pubKey, H(message)) == e(g1, signature) — in place of
// the real Core-chain ProTxHash-derived key material, which corerpc
// treats as external per the platform's non-goals around a P2P/consensus
// stack of its own.
func VerifyMasternodeVote(pubKeyBytes, signatureBytes, message []byte) (bool, error) {
	g1 := bls12381.NewG1()
	g2 := bls12381.NewG2()

	pubKey, err := g1.FromBytes(pubKeyBytes)
	if err != nil {
		return false, errs.Wrap(err, "decode masternode quorum public key")
	}
	signature, err := g2.FromBytes(signatureBytes)
	if err != nil {
		return false, errs.Wrap(err, "decode masternode vote signature")
	}
	messagePoint, err := g2.MapToCurve(message)
	if err != nil {
		return false, errs.Wrap(err, "map vote message to curve")
	}

	engine := bls12381.NewEngine()
	engine.AddPair(pubKey, messagePoint)
	engine.AddPairInv(g1.One(), signature)
	return engine.Check(), nil
}
