// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"encoding/binary"

	"github.com/molecula/rdfsail/errors"
)

// Row encoding shared by the key/value backends. A row key is the bucket
// followed by the triple, all big endian, so keys of one bucket are
// contiguous and sort like the in-memory rows.
const (
	// RowKeySize is the length of an encoded row key.
	RowKeySize = 8 + TripleSize

	// TripleSize is the length of an encoded triple.
	TripleSize = 4*8 + 1

	// OpSize is the length of an encoded op.
	OpSize = 1 + TripleSize
)

// AppendTriple appends the encoding of t to buf.
func AppendTriple(buf []byte, t Triple) []byte {
	buf = binary.BigEndian.AppendUint64(buf, uint64(t.Pred))
	buf = binary.BigEndian.AppendUint64(buf, uint64(t.Subj))
	buf = binary.BigEndian.AppendUint64(buf, uint64(t.Obj))
	buf = binary.BigEndian.AppendUint64(buf, uint64(t.Ctx))
	if t.Inferred {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// DecodeTriple decodes a triple encoded by AppendTriple.
func DecodeTriple(buf []byte) (Triple, error) {
	if len(buf) != TripleSize {
		return Triple{}, errors.Newf(ErrStorageIO, "invalid triple encoding: %d bytes", len(buf))
	}
	return Triple{
		Pred:     ID(binary.BigEndian.Uint64(buf[0:])),
		Subj:     ID(binary.BigEndian.Uint64(buf[8:])),
		Obj:      ID(binary.BigEndian.Uint64(buf[16:])),
		Ctx:      ID(binary.BigEndian.Uint64(buf[24:])),
		Inferred: buf[32] == 1,
	}, nil
}

// RowKey returns the key of t in bucket.
func RowKey(bucket ID, t Triple) []byte {
	buf := make([]byte, 0, RowKeySize)
	buf = binary.BigEndian.AppendUint64(buf, uint64(bucket))
	return AppendTriple(buf, t)
}

// DecodeRowKey decodes a key returned by RowKey.
func DecodeRowKey(key []byte) (ID, Triple, error) {
	if len(key) != RowKeySize {
		return Nil, Triple{}, errors.Newf(ErrStorageIO, "invalid row key: %d bytes", len(key))
	}
	t, err := DecodeTriple(key[8:])
	return ID(binary.BigEndian.Uint64(key)), t, err
}

// EncodeOps encodes ops as fixed-size records.
func EncodeOps(ops []Op) []byte {
	buf := make([]byte, 0, len(ops)*OpSize)
	for _, op := range ops {
		buf = append(buf, byte(op.Type))
		buf = AppendTriple(buf, op.Triple)
	}
	return buf
}

// DecodeOps decodes records written by EncodeOps.
func DecodeOps(buf []byte) ([]Op, error) {
	if len(buf)%OpSize != 0 {
		return nil, errors.Newf(ErrStorageIO, "invalid op encoding: %d bytes", len(buf))
	}
	ops := make([]Op, 0, len(buf)/OpSize)
	for i := 0; i < len(buf); i += OpSize {
		typ := OpType(buf[i])
		if typ != OpInsert && typ != OpRemove {
			return nil, errors.Newf(ErrStorageIO, "invalid op type: %d", buf[i])
		}
		t, err := DecodeTriple(buf[i+1 : i+OpSize])
		if err != nil {
			return nil, err
		}
		ops = append(ops, Op{Type: typ, Triple: t})
	}
	return ops, nil
}

// StageKey returns the prefix of the staged records of a transaction's
// bucket. Records are keyed by the prefix plus a sequence number.
func StageKey(txID uint64, bucket ID) []byte {
	buf := make([]byte, 0, 16)
	buf = binary.BigEndian.AppendUint64(buf, txID)
	return binary.BigEndian.AppendUint64(buf, uint64(bucket))
}

// StageRecordKey returns the key of the seq'th staged record.
func StageRecordKey(txID uint64, bucket ID, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(StageKey(txID, bucket), seq)
}
