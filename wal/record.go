package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/intellect4all/kvkernel/common"
)

// Record types. Reserve is deliberately absent — the WAL only ever logs
// the five operations spec.md names.
const (
	TypePut        uint8 = 1
	TypeDelete     uint8 = 2
	TypeCheckpoint uint8 = 3
	TypeTxnCommit  uint8 = 4
	TypeTxnAbort   uint8 = 5
)

// recordHeaderSize is the fixed 32-byte record header: type(1) + flags(1)
// + reserved(2) + payload_len(4) + lsn(8) + prev_lsn(8) + crc(4) + reserved(4).
const recordHeaderSize = 32

// Record is one decoded WAL entry. Payload is the raw, type-specific
// encoding produced by the Encode* helpers below; callers pick the
// matching Decode* helper based on Type.
type Record struct {
	Type    uint8
	Flags   uint8
	LSN     uint64
	PrevLSN uint64
	Payload []byte
}

func encodeRecord(recType uint8, flags uint8, lsn, prevLSN uint64, payload []byte) []byte {
	buf := make([]byte, recordHeaderSize+len(payload))
	buf[0] = recType
	buf[1] = flags
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(payload)))
	binary.LittleEndian.PutUint64(buf[8:], lsn)
	binary.LittleEndian.PutUint64(buf[16:], prevLSN)
	copy(buf[recordHeaderSize:], payload)
	crc := crc32.ChecksumIEEE(buf[:24])
	crc = crc32.Update(crc, crc32.IEEETable, buf[recordHeaderSize:])
	binary.LittleEndian.PutUint32(buf[24:], crc)
	return buf
}

// decodeRecordHeader parses the 32-byte record header without touching
// the payload; the caller is responsible for reading PayloadLen more
// bytes and verifying the CRC via verifyRecordCRC.
func decodeRecordHeader(buf []byte) (rec Record, payloadLen uint32, crc uint32, err error) {
	if len(buf) < recordHeaderSize {
		return Record{}, 0, 0, fmt.Errorf("%w: wal record header truncated", common.ErrCorrupt)
	}
	rec.Type = buf[0]
	rec.Flags = buf[1]
	payloadLen = binary.LittleEndian.Uint32(buf[4:])
	rec.LSN = binary.LittleEndian.Uint64(buf[8:])
	rec.PrevLSN = binary.LittleEndian.Uint64(buf[16:])
	crc = binary.LittleEndian.Uint32(buf[24:])
	switch rec.Type {
	case TypePut, TypeDelete, TypeCheckpoint, TypeTxnCommit, TypeTxnAbort:
	default:
		return Record{}, 0, 0, fmt.Errorf("%w: unknown wal record type %d", common.ErrCorrupt, rec.Type)
	}
	return rec, payloadLen, crc, nil
}

func verifyRecordCRC(headerBuf []byte, payload []byte, wantCRC uint32) error {
	crc := crc32.ChecksumIEEE(headerBuf[:24])
	crc = crc32.Update(crc, crc32.IEEETable, payload)
	if crc != wantCRC {
		return fmt.Errorf("%w: wal record crc mismatch", common.ErrCorrupt)
	}
	return nil
}

// PutPayload is the decoded form of a TypePut record's payload.
type PutPayload struct {
	Store string
	Key   []byte
	Value []byte
	Txn   uint64
}

func EncodePut(store string, key, value []byte, txn uint64) []byte {
	buf := make([]byte, 2+len(store)+4+len(key)+4+len(value)+8)
	off := 0
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(store)))
	off += 2
	copy(buf[off:], store)
	off += len(store)
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(key)))
	off += 4
	copy(buf[off:], key)
	off += len(key)
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(value)))
	off += 4
	copy(buf[off:], value)
	off += len(value)
	binary.LittleEndian.PutUint64(buf[off:], txn)
	return buf
}

func DecodePut(payload []byte) (PutPayload, error) {
	if len(payload) < 2 {
		return PutPayload{}, fmt.Errorf("%w: truncated put payload", common.ErrCorrupt)
	}
	off := 0
	storeLen := int(binary.LittleEndian.Uint16(payload[off:]))
	off += 2
	if len(payload) < off+storeLen+4 {
		return PutPayload{}, fmt.Errorf("%w: truncated put payload", common.ErrCorrupt)
	}
	store := string(payload[off : off+storeLen])
	off += storeLen
	keyLen := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4
	if len(payload) < off+keyLen+4 {
		return PutPayload{}, fmt.Errorf("%w: truncated put payload", common.ErrCorrupt)
	}
	key := append([]byte(nil), payload[off:off+keyLen]...)
	off += keyLen
	valLen := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4
	if len(payload) < off+valLen+8 {
		return PutPayload{}, fmt.Errorf("%w: truncated put payload", common.ErrCorrupt)
	}
	value := append([]byte(nil), payload[off:off+valLen]...)
	off += valLen
	txn := binary.LittleEndian.Uint64(payload[off:])
	return PutPayload{Store: store, Key: key, Value: value, Txn: txn}, nil
}

// DeletePayload is the decoded form of a TypeDelete record's payload.
type DeletePayload struct {
	Store string
	Key   []byte
	Txn   uint64
}

func EncodeDelete(store string, key []byte, txn uint64) []byte {
	buf := make([]byte, 2+len(store)+4+len(key)+8)
	off := 0
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(store)))
	off += 2
	copy(buf[off:], store)
	off += len(store)
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(key)))
	off += 4
	copy(buf[off:], key)
	off += len(key)
	binary.LittleEndian.PutUint64(buf[off:], txn)
	return buf
}

func DecodeDelete(payload []byte) (DeletePayload, error) {
	if len(payload) < 2 {
		return DeletePayload{}, fmt.Errorf("%w: truncated delete payload", common.ErrCorrupt)
	}
	off := 0
	storeLen := int(binary.LittleEndian.Uint16(payload[off:]))
	off += 2
	if len(payload) < off+storeLen+4 {
		return DeletePayload{}, fmt.Errorf("%w: truncated delete payload", common.ErrCorrupt)
	}
	store := string(payload[off : off+storeLen])
	off += storeLen
	keyLen := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4
	if len(payload) < off+keyLen+8 {
		return DeletePayload{}, fmt.Errorf("%w: truncated delete payload", common.ErrCorrupt)
	}
	key := append([]byte(nil), payload[off:off+keyLen]...)
	off += keyLen
	txn := binary.LittleEndian.Uint64(payload[off:])
	return DeletePayload{Store: store, Key: key, Txn: txn}, nil
}

func EncodeTxnCommit(txnID, commitTS uint64) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:], txnID)
	binary.LittleEndian.PutUint64(buf[8:], commitTS)
	return buf
}

func DecodeTxnCommit(payload []byte) (txnID, commitTS uint64, err error) {
	if len(payload) < 16 {
		return 0, 0, fmt.Errorf("%w: truncated txn_commit payload", common.ErrCorrupt)
	}
	return binary.LittleEndian.Uint64(payload[0:]), binary.LittleEndian.Uint64(payload[8:]), nil
}

func EncodeTxnAbort(txnID uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, txnID)
	return buf
}

func DecodeTxnAbort(payload []byte) (uint64, error) {
	if len(payload) < 8 {
		return 0, fmt.Errorf("%w: truncated txn_abort payload", common.ErrCorrupt)
	}
	return binary.LittleEndian.Uint64(payload), nil
}
