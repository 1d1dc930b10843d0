package substrate

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"math/bits"

	"availsdk/internal/domain"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"golang.org/x/crypto/blake2b"
)

const (
	extrinsicVersion = 4
	signedBit        = 0x80

	maxEraPeriod = 1 << 16
	minEraPeriod = 4
)

// Era is the mortality of a signed extrinsic. The zero value is immortal.
type Era struct {
	Period uint64
	Phase  uint64
}

func (e Era) Immortal() bool {
	return e.Period == 0
}

// MortalEra builds an era valid for period blocks starting at the checkpoint block.
func MortalEra(period, checkpoint uint64) Era {
	if period == 0 {
		return Era{}
	}
	p := nextPowerOfTwo(period)
	if p < minEraPeriod {
		p = minEraPeriod
	}
	if p > maxEraPeriod {
		p = maxEraPeriod
	}
	quantize := max(p>>12, 1)
	phase := checkpoint % p / quantize * quantize
	return Era{Period: p, Phase: phase}
}

func (e Era) Encode(encoder scale.Encoder) error {
	if e.Immortal() {
		return encoder.PushByte(0)
	}
	quantize := max(e.Period>>12, 1)
	low := uint64(bits.TrailingZeros64(e.Period)) - 1
	low = min(max(low, 1), 15)
	encoded := uint16(low | (e.Phase/quantize)<<4)
	return encoder.Write([]byte{byte(encoded), byte(encoded >> 8)})
}

func (e *Era) Decode(decoder scale.Decoder) error {
	first, err := decoder.ReadOneByte()
	if err != nil {
		return err
	}
	if first == 0 {
		*e = Era{}
		return nil
	}
	second, err := decoder.ReadOneByte()
	if err != nil {
		return err
	}
	encoded := uint64(first) | uint64(second)<<8
	period := uint64(2) << (encoded % (1 << 4))
	quantize := max(period>>12, 1)
	phase := (encoded >> 4) * quantize
	if period < minEraPeriod || phase >= period {
		return errors.New("invalid era")
	}
	*e = Era{Period: period, Phase: phase}
	return nil
}

func nextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len64(n-1)
}

// signingContext carries the chain values committed to by a signature.
type signingContext struct {
	specVersion uint32
	txVersion   uint32
	genesis     domain.Hash
	checkpoint  domain.Hash
	era         Era
	nonce       uint32
	tip         *big.Int
	appID       uint32
}

// signedExtra is the per-transaction part of the signed extensions, in runtime order:
// CheckMortality, CheckNonce, ChargeTransactionPayment and CheckAppId.
func (s signingContext) signedExtra(encoder *scale.Encoder) error {
	if err := encoder.Encode(s.era); err != nil {
		return err
	}
	if err := encoder.EncodeUintCompact(*new(big.Int).SetUint64(uint64(s.nonce))); err != nil {
		return err
	}
	tip := s.tip
	if tip == nil {
		tip = new(big.Int)
	}
	if err := encoder.EncodeUintCompact(*tip); err != nil {
		return err
	}
	return encoder.EncodeUintCompact(*new(big.Int).SetUint64(uint64(s.appID)))
}

// payload is the byte string the signer signs. Payloads longer than 256 bytes are
// replaced by their blake2b-256 hash.
func (s signingContext) payload(call []byte) ([]byte, error) {
	var buf bytes.Buffer
	encoder := scale.NewEncoder(&buf)
	if err := encoder.Write(call); err != nil {
		return nil, err
	}
	if err := s.signedExtra(encoder); err != nil {
		return nil, err
	}
	for _, value := range []any{types.NewU32(s.specVersion), types.NewU32(s.txVersion), types.NewHash(s.genesis[:]), types.NewHash(s.checkpoint[:])} {
		if err := encoder.Encode(value); err != nil {
			return nil, err
		}
	}
	out := buf.Bytes()
	if len(out) > 256 {
		sum := blake2b.Sum256(out)
		return sum[:], nil
	}
	return out, nil
}

// encodeSigned assembles a length-prefixed v4 signed extrinsic with an sr25519 signature.
func encodeSigned(signer domain.AccountID, signature []byte, ctx signingContext, call []byte) ([]byte, error) {
	if len(signature) != 64 {
		return nil, fmt.Errorf("sr25519 signature must be 64 bytes, got %d", len(signature))
	}
	var body bytes.Buffer
	encoder := scale.NewEncoder(&body)
	if err := encoder.PushByte(signedBit | extrinsicVersion); err != nil {
		return nil, err
	}
	address := types.MultiAddress{IsID: true, AsID: types.AccountID(signer)}
	if err := encoder.Encode(address); err != nil {
		return nil, err
	}
	var sig types.Signature
	copy(sig[:], signature)
	if err := encoder.Encode(types.MultiSignature{IsSr25519: true, AsSr25519: sig}); err != nil {
		return nil, err
	}
	if err := ctx.signedExtra(encoder); err != nil {
		return nil, err
	}
	if err := encoder.Write(call); err != nil {
		return nil, err
	}
	return lengthPrefixed(body.Bytes())
}

func lengthPrefixed(body []byte) ([]byte, error) {
	var out bytes.Buffer
	encoder := scale.NewEncoder(&out)
	if err := encoder.EncodeUintCompact(*new(big.Int).SetUint64(uint64(len(body)))); err != nil {
		return nil, err
	}
	if err := encoder.Write(body); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// extrinsicHash is the blake2b-256 of the encoded extrinsic, as reported by the node.
func extrinsicHash(encoded []byte) domain.Hash {
	return domain.Hash(blake2b.Sum256(encoded))
}

// encodeCall encodes the call index followed by its arguments. Nested domain.Call
// arguments are encoded inline as boxed calls.
func (r *runtimeRegistry) encodeCall(call domain.Call) ([]byte, error) {
	index, err := r.callIndex(call.Pallet, call.Method)
	if err != nil {
		return nil, err
	}
	out := []byte{index[0], index[1]}
	for i, arg := range call.Args {
		var encoded []byte
		if nested, ok := arg.(domain.Call); ok {
			encoded, err = r.encodeCall(nested)
		} else {
			encoded, err = codec.Encode(arg)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s argument %d: %w", call.Name(), i, err)
		}
		out = append(out, encoded...)
	}
	return out, nil
}

// decodeExtrinsic reads one encoded extrinsic far enough for introspection.
func (r *runtimeRegistry) decodeExtrinsic(index uint32, encoded []byte) (domain.Extrinsic, error) {
	extrinsic := domain.Extrinsic{Index: index, Hash: extrinsicHash(encoded), Raw: encoded}
	reader := bytes.NewReader(encoded)
	decoder := scale.NewDecoder(reader)
	if _, err := decoder.DecodeUintCompact(); err != nil {
		return extrinsic, fmt.Errorf("extrinsic %d length: %w", index, err)
	}
	version, err := decoder.ReadOneByte()
	if err != nil {
		return extrinsic, err
	}
	if version&0x7f != extrinsicVersion {
		return extrinsic, fmt.Errorf("extrinsic %d: unsupported version %d", index, version&0x7f)
	}
	if version&signedBit != 0 {
		extrinsic.Signed = true
		if err := decodeSignature(decoder, &extrinsic); err != nil {
			return extrinsic, fmt.Errorf("extrinsic %d: %w", index, err)
		}
	}

	call := encoded[len(encoded)-reader.Len():]
	if len(call) < 2 {
		return extrinsic, fmt.Errorf("extrinsic %d: call is truncated", index)
	}
	extrinsic.CallIndex = [2]byte{call[0], call[1]}
	extrinsic.Args = call[2:]
	pallet, method, ok := r.callName(extrinsic.CallIndex)
	if !ok {
		return extrinsic, fmt.Errorf("extrinsic %d: unknown call index %v", index, extrinsic.CallIndex)
	}
	extrinsic.Pallet = pallet
	extrinsic.Method = method
	return extrinsic, nil
}

func decodeSignature(decoder *scale.Decoder, extrinsic *domain.Extrinsic) error {
	var address types.MultiAddress
	if err := decoder.Decode(&address); err != nil {
		return fmt.Errorf("signer: %w", err)
	}
	if address.IsID {
		signer := domain.AccountID(address.AsID)
		extrinsic.Signer = &signer
	}
	var signature types.MultiSignature
	if err := decoder.Decode(&signature); err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	var era Era
	if err := decoder.Decode(&era); err != nil {
		return fmt.Errorf("era: %w", err)
	}
	nonce, err := decoder.DecodeUintCompact()
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	tip, err := decoder.DecodeUintCompact()
	if err != nil {
		return fmt.Errorf("tip: %w", err)
	}
	appID, err := decoder.DecodeUintCompact()
	if err != nil {
		return fmt.Errorf("app id: %w", err)
	}
	extrinsic.Nonce = uint32(nonce.Uint64())
	extrinsic.Tip = tip
	extrinsic.AppID = uint32(appID.Uint64())
	return nil
}
