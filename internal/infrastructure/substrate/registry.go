package substrate

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"availsdk/internal/domain"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// runtimeRegistry resolves names and decodes values against V14 runtime metadata.
// Decoded values are normalized for domain.EventRecord: composites with named
// fields become map[string]any, single-field wrappers are unwrapped, byte
// sequences become []byte, unit variants become their name and Option/Result are
// flattened (None and Ok(()) become nil, Err(e) becomes {"Err": e}).
type runtimeRegistry struct {
	lookup        map[int64]types.Si1Type
	palletsByName map[string]types.PalletMetadataV14
	palletsByIdx  map[uint8]types.PalletMetadataV14
	eventsType    int64
}

func newRuntimeRegistry(meta *types.Metadata) (*runtimeRegistry, error) {
	if meta == nil || meta.Version != 14 {
		return nil, errors.New("runtime metadata v14 is required")
	}
	v14 := meta.AsMetadataV14
	registry := &runtimeRegistry{
		lookup:        make(map[int64]types.Si1Type, len(v14.Lookup.Types)),
		palletsByName: make(map[string]types.PalletMetadataV14, len(v14.Pallets)),
		palletsByIdx:  make(map[uint8]types.PalletMetadataV14, len(v14.Pallets)),
		eventsType:    -1,
	}
	for _, entry := range v14.Lookup.Types {
		registry.lookup[entry.ID.Int64()] = entry.Type
	}
	for _, pallet := range v14.Pallets {
		registry.palletsByName[string(pallet.Name)] = pallet
		registry.palletsByIdx[uint8(pallet.Index)] = pallet
	}
	if system, ok := registry.palletsByName["System"]; ok && system.HasStorage {
		for _, item := range system.Storage.Items {
			if string(item.Name) == "Events" && item.Type.IsPlainType {
				registry.eventsType = item.Type.AsPlainType.Int64()
			}
		}
	}
	return registry, nil
}

func (r *runtimeRegistry) typeOf(id int64) (types.Si1Type, error) {
	ty, ok := r.lookup[id]
	if !ok {
		return types.Si1Type{}, fmt.Errorf("type %d not found in metadata", id)
	}
	return ty, nil
}

// callIndex returns the [pallet, call] index pair for pallet.method.
func (r *runtimeRegistry) callIndex(pallet, method string) ([2]byte, error) {
	meta, ok := r.palletsByName[pallet]
	if !ok || !meta.HasCalls {
		return [2]byte{}, fmt.Errorf("pallet %s has no calls", pallet)
	}
	ty, err := r.typeOf(meta.Calls.Type.Int64())
	if err != nil {
		return [2]byte{}, err
	}
	for _, variant := range ty.Def.Variant.Variants {
		if string(variant.Name) == method {
			return [2]byte{byte(meta.Index), byte(variant.Index)}, nil
		}
	}
	return [2]byte{}, fmt.Errorf("call %s.%s not found in metadata", pallet, method)
}

func (r *runtimeRegistry) callName(index [2]byte) (string, string, bool) {
	meta, ok := r.palletsByIdx[index[0]]
	if !ok || !meta.HasCalls {
		return "", "", false
	}
	ty, err := r.typeOf(meta.Calls.Type.Int64())
	if err != nil {
		return "", "", false
	}
	for _, variant := range ty.Def.Variant.Variants {
		if byte(variant.Index) == index[1] {
			return string(meta.Name), string(variant.Name), true
		}
	}
	return string(meta.Name), "", false
}

// resolveDispatchError fills the pallet, error name and docs of a module error.
func (r *runtimeRegistry) resolveDispatchError(dispatchErr domain.DispatchError) domain.DispatchError {
	module := dispatchErr.Module
	if module == nil {
		return dispatchErr
	}
	meta, ok := r.palletsByIdx[module.PalletIndex]
	if !ok {
		return dispatchErr
	}
	resolved := *module
	resolved.Pallet = string(meta.Name)
	if meta.HasErrors {
		if ty, err := r.typeOf(meta.Errors.Type.Int64()); err == nil {
			for _, variant := range ty.Def.Variant.Variants {
				if byte(variant.Index) != module.ErrorIndex {
					continue
				}
				resolved.Error = string(variant.Name)
				docs := make([]string, 0, len(variant.Docs))
				for _, line := range variant.Docs {
					docs = append(docs, string(line))
				}
				resolved.Docs = domain.JoinDocs(docs)
			}
		}
	}
	return domain.DispatchError{Module: &resolved}
}

// decodeEvents decodes the raw System.Events storage value.
func (r *runtimeRegistry) decodeEvents(raw []byte) ([]domain.EventRecord, error) {
	if r.eventsType < 0 {
		return nil, errors.New("System.Events not found in metadata")
	}
	seq, err := r.typeOf(r.eventsType)
	if err != nil {
		return nil, err
	}
	if !seq.Def.IsSequence {
		return nil, errors.New("System.Events is not a sequence")
	}
	recordType, err := r.typeOf(seq.Def.Sequence.Type.Int64())
	if err != nil {
		return nil, err
	}

	decoder := scale.NewDecoder(bytes.NewReader(raw))
	count, err := decoder.DecodeUintCompact()
	if err != nil {
		return nil, fmt.Errorf("decode event count: %w", err)
	}
	records := make([]domain.EventRecord, 0, capacityFor(count.Uint64()))
	for i := uint64(0); i < count.Uint64(); i++ {
		record := domain.EventRecord{Index: uint32(i)}
		for _, field := range recordType.Def.Composite.Fields {
			switch string(field.Name) {
			case "phase":
				value, err := r.decodeValue(decoder, field.Type.Int64())
				if err != nil {
					return nil, fmt.Errorf("event %d phase: %w", i, err)
				}
				record.Phase = phaseFrom(value)
			case "event":
				if err := r.decodeRuntimeEvent(decoder, field.Type.Int64(), &record); err != nil {
					return nil, fmt.Errorf("event %d: %w", i, err)
				}
			default:
				if _, err := r.decodeValue(decoder, field.Type.Int64()); err != nil {
					return nil, fmt.Errorf("event %d %s: %w", i, field.Name, err)
				}
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// decodeRuntimeEvent reads the outer pallet variant and the inner event variant.
func (r *runtimeRegistry) decodeRuntimeEvent(decoder *scale.Decoder, id int64, record *domain.EventRecord) error {
	outer, err := r.readVariant(decoder, id)
	if err != nil {
		return err
	}
	record.Pallet = string(outer.Name)
	if len(outer.Fields) != 1 {
		return fmt.Errorf("pallet event %s has %d fields", outer.Name, len(outer.Fields))
	}
	inner, err := r.readVariant(decoder, outer.Fields[0].Type.Int64())
	if err != nil {
		return err
	}
	record.Name = string(inner.Name)
	if len(inner.Fields) == 0 {
		return nil
	}
	record.Fields = make(map[string]any, len(inner.Fields))
	for i, field := range inner.Fields {
		value, err := r.decodeValue(decoder, field.Type.Int64())
		if err != nil {
			return fmt.Errorf("%s.%s field %d: %w", record.Pallet, record.Name, i, err)
		}
		key := strconv.Itoa(i)
		if field.HasName {
			key = string(field.Name)
		}
		record.Fields[key] = value
	}
	return nil
}

func (r *runtimeRegistry) readVariant(decoder *scale.Decoder, id int64) (types.Si1Variant, error) {
	ty, err := r.typeOf(id)
	if err != nil {
		return types.Si1Variant{}, err
	}
	if !ty.Def.IsVariant {
		return types.Si1Variant{}, fmt.Errorf("type %d is not a variant", id)
	}
	index, err := decoder.ReadOneByte()
	if err != nil {
		return types.Si1Variant{}, err
	}
	for _, variant := range ty.Def.Variant.Variants {
		if byte(variant.Index) == index {
			return variant, nil
		}
	}
	return types.Si1Variant{}, fmt.Errorf("variant %d not found in type %d", index, id)
}

func (r *runtimeRegistry) decodeValue(decoder *scale.Decoder, id int64) (any, error) {
	ty, err := r.typeOf(id)
	if err != nil {
		return nil, err
	}
	def := ty.Def
	switch {
	case def.IsComposite:
		return r.decodeFields(decoder, def.Composite.Fields)
	case def.IsVariant:
		return r.decodeVariant(decoder, id, ty)
	case def.IsSequence:
		length, err := decoder.DecodeUintCompact()
		if err != nil {
			return nil, err
		}
		return r.decodeList(decoder, def.Sequence.Type.Int64(), length.Uint64())
	case def.IsArray:
		return r.decodeList(decoder, def.Array.Type.Int64(), uint64(def.Array.Len))
	case def.IsTuple:
		if len(def.Tuple) == 0 {
			return nil, nil
		}
		values := make([]any, 0, len(def.Tuple))
		for _, item := range def.Tuple {
			value, err := r.decodeValue(decoder, item.Int64())
			if err != nil {
				return nil, err
			}
			values = append(values, value)
		}
		return values, nil
	case def.IsPrimitive:
		return decodePrimitive(decoder, def.Primitive.Si0TypeDefPrimitive)
	case def.IsCompact:
		value, err := decoder.DecodeUintCompact()
		if err != nil {
			return nil, err
		}
		if value.IsUint64() && !r.isWide(def.Compact.Type.Int64()) {
			return value.Uint64(), nil
		}
		return value, nil
	default:
		return nil, fmt.Errorf("type %d has an unsupported definition", id)
	}
}

func (r *runtimeRegistry) decodeFields(decoder *scale.Decoder, fields []types.Si1Field) (any, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	if !fields[0].HasName {
		if len(fields) == 1 {
			return r.decodeValue(decoder, fields[0].Type.Int64())
		}
		values := make([]any, 0, len(fields))
		for _, field := range fields {
			value, err := r.decodeValue(decoder, field.Type.Int64())
			if err != nil {
				return nil, err
			}
			values = append(values, value)
		}
		return values, nil
	}
	out := make(map[string]any, len(fields))
	for _, field := range fields {
		value, err := r.decodeValue(decoder, field.Type.Int64())
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		out[string(field.Name)] = value
	}
	return out, nil
}

func (r *runtimeRegistry) decodeVariant(decoder *scale.Decoder, id int64, ty types.Si1Type) (any, error) {
	variant, err := r.readVariant(decoder, id)
	if err != nil {
		return nil, err
	}
	name := string(variant.Name)
	switch lastPathSegment(ty.Path) {
	case "Option":
		if name == "None" {
			return nil, nil
		}
		return r.decodeFields(decoder, variant.Fields)
	case "Result":
		value, err := r.decodeFields(decoder, variant.Fields)
		if err != nil || name == "Ok" {
			return value, err
		}
		return map[string]any{"Err": value}, nil
	}
	if len(variant.Fields) == 0 {
		return name, nil
	}
	value, err := r.decodeFields(decoder, variant.Fields)
	if err != nil {
		return nil, err
	}
	return map[string]any{name: value}, nil
}

func (r *runtimeRegistry) decodeList(decoder *scale.Decoder, elem int64, length uint64) (any, error) {
	if r.isByte(elem) {
		return readBytes(decoder, length)
	}
	values := make([]any, 0, capacityFor(length))
	for i := uint64(0); i < length; i++ {
		value, err := r.decodeValue(decoder, elem)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

// maxPrealloc caps capacities taken from compact lengths read off the wire.
const maxPrealloc = 1 << 12

func capacityFor(length uint64) int {
	if length > maxPrealloc {
		return maxPrealloc
	}
	return int(length)
}

// readBytes reads length bytes in bounded chunks, so a corrupt length fails at the
// end of input instead of allocating it up front.
func readBytes(decoder *scale.Decoder, length uint64) ([]byte, error) {
	buf := make([]byte, 0, capacityFor(length))
	chunk := make([]byte, capacityFor(length))
	for remaining := length; remaining > 0; {
		n := min(remaining, uint64(len(chunk)))
		if err := decoder.Read(chunk[:n]); err != nil {
			return nil, fmt.Errorf("read %d bytes: %w", length, err)
		}
		buf = append(buf, chunk[:n]...)
		remaining -= n
	}
	return buf, nil
}

func (r *runtimeRegistry) isByte(id int64) bool {
	ty, ok := r.lookup[id]
	return ok && ty.Def.IsPrimitive && ty.Def.Primitive.Si0TypeDefPrimitive == types.IsU8
}

func (r *runtimeRegistry) isWide(id int64) bool {
	ty, ok := r.lookup[id]
	if !ok {
		return false
	}
	if ty.Def.IsComposite && len(ty.Def.Composite.Fields) == 1 {
		return r.isWide(ty.Def.Composite.Fields[0].Type.Int64())
	}
	if !ty.Def.IsPrimitive {
		return false
	}
	kind := ty.Def.Primitive.Si0TypeDefPrimitive
	return kind == types.IsU128 || kind == types.IsU256
}

func decodePrimitive(decoder *scale.Decoder, kind types.Si0TypeDefPrimitive) (any, error) {
	switch kind {
	case types.IsBool:
		b, err := decoder.ReadOneByte()
		return b == 1, err
	case types.IsChar:
		var c types.U32
		err := decoder.Decode(&c)
		return string(rune(c)), err
	case types.IsStr:
		var s types.Text
		err := decoder.Decode(&s)
		return string(s), err
	case types.IsU8:
		b, err := decoder.ReadOneByte()
		return uint64(b), err
	case types.IsU16:
		var v types.U16
		err := decoder.Decode(&v)
		return uint64(v), err
	case types.IsU32:
		var v types.U32
		err := decoder.Decode(&v)
		return uint64(v), err
	case types.IsU64:
		var v types.U64
		err := decoder.Decode(&v)
		return uint64(v), err
	case types.IsU128:
		return readLittleEndian(decoder, 16)
	case types.IsU256:
		return readLittleEndian(decoder, 32)
	case types.IsI8:
		var v types.I8
		err := decoder.Decode(&v)
		return int64(v), err
	case types.IsI16:
		var v types.I16
		err := decoder.Decode(&v)
		return int64(v), err
	case types.IsI32:
		var v types.I32
		err := decoder.Decode(&v)
		return int64(v), err
	case types.IsI64:
		var v types.I64
		err := decoder.Decode(&v)
		return int64(v), err
	default:
		return nil, fmt.Errorf("unsupported primitive %d", kind)
	}
}

func readLittleEndian(decoder *scale.Decoder, size int) (*big.Int, error) {
	buf := make([]byte, size)
	if err := decoder.Read(buf); err != nil {
		return nil, err
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return new(big.Int).SetBytes(buf), nil
}

func lastPathSegment(path types.Si1Path) string {
	if len(path) == 0 {
		return ""
	}
	return string(path[len(path)-1])
}

func phaseFrom(value any) domain.Phase {
	switch v := value.(type) {
	case map[string]any:
		if index, ok := v["ApplyExtrinsic"]; ok {
			n, _ := domain.AsUint64(index)
			return domain.ApplyExtrinsic(uint32(n))
		}
	case string:
		if v == "Finalization" {
			return domain.Phase{Kind: domain.PhaseFinalization}
		}
	}
	return domain.Phase{Kind: domain.PhaseInitialization}
}
