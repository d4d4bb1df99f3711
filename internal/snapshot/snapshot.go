// Package snapshot exports the market store to a single compressed file and
// restores it into an empty store. The payload is a FlatBuffers Snapshot
// carrying every key in order, a blake3 checksum over the canonical entries,
// and zstd compression on top.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"LineageMarket/internal/storage"
	"LineageMarket/internal/types"
)

// snapshotVersion is the current snapshot format version.
const snapshotVersion = 1

var (
	// ErrChecksumMismatch is returned when the snapshot content does not match its checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrNotEmpty is returned when restoring into a store that already holds data.
	ErrNotEmpty = errors.New("target store is not empty")

	// errStop ends an iteration early.
	errStop = errors.New("stop")
)

// Info describes a snapshot.
type Info struct {
	Version   uint32   // Version is the format version
	CreatedAt uint64   // CreatedAt is the unix time of the export
	Entries   int      // Entries is the number of stored keys
	Checksum  [32]byte // Checksum is the blake3 content checksum
}

// entry is one stored key-value pair.
type entry struct {
	key   []byte
	value []byte
}

// Create exports every key of db and returns the compressed snapshot.
func Create(db *storage.Storage, createdAt uint64) ([]byte, *Info, error) {
	entries, err := collect(db)
	if err != nil {
		return nil, nil, fmt.Errorf("collect entries:\n%w", err)
	}

	checksum := computeChecksum(snapshotVersion, createdAt, entries)

	data, err := compress(build(createdAt, entries, checksum))
	if err != nil {
		return nil, nil, fmt.Errorf("compress:\n%w", err)
	}

	info := &Info{
		Version:   snapshotVersion,
		CreatedAt: createdAt,
		Entries:   len(entries),
		Checksum:  checksum,
	}

	return data, info, nil
}

// Restore verifies a compressed snapshot and writes its entries into db.
// db must be empty. Nothing is written when verification fails.
func Restore(db *storage.Storage, data []byte) (*Info, error) {
	raw, err := decompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompress:\n%w", err)
	}

	info, entries, err := parse(raw)
	if err != nil {
		return nil, err
	}

	empty, err := IsEmpty(db)
	if err != nil {
		return nil, fmt.Errorf("check target:\n%w", err)
	}

	if !empty {
		return nil, ErrNotEmpty
	}

	pairs := make([]storage.KeyValue, len(entries))
	for i, e := range entries {
		pairs[i] = storage.KeyValue{Key: e.key, Value: e.value}
	}

	if err := db.SetBatch(pairs); err != nil {
		return nil, fmt.Errorf("write entries:\n%w", err)
	}

	return info, nil
}

// Inspect verifies a compressed snapshot without applying it.
func Inspect(data []byte) (*Info, error) {
	raw, err := decompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompress:\n%w", err)
	}

	info, _, err := parse(raw)

	return info, err
}

// collect reads every key-value pair of db in key order.
func collect(db *storage.Storage) ([]entry, error) {
	var entries []entry

	err := db.Iterate(func(key, value []byte) error {
		// Copy key and value to avoid iterator invalidation
		entries = append(entries, entry{
			key:   bytes.Clone(key),
			value: bytes.Clone(value),
		})

		return nil
	})

	return entries, err
}

// IsEmpty reports whether db holds no keys.
func IsEmpty(db *storage.Storage) (bool, error) {
	empty := true

	err := db.Iterate(func(_, _ []byte) error {
		empty = false
		return errStop
	})

	if err != nil && !errors.Is(err, errStop) {
		return false, err
	}

	return empty, nil
}

// build serializes the snapshot FlatBuffer.
func build(createdAt uint64, entries []entry, checksum [32]byte) []byte {
	builder := flatbuffers.NewBuilder(1024)

	offsets := make([]flatbuffers.UOffsetT, len(entries))
	for i, e := range entries {
		keyOffset := builder.CreateByteVector(e.key)
		valueOffset := builder.CreateByteVector(e.value)

		types.SnapshotEntryStart(builder)
		types.SnapshotEntryAddKey(builder, keyOffset)
		types.SnapshotEntryAddValue(builder, valueOffset)
		offsets[i] = types.SnapshotEntryEnd(builder)
	}

	types.SnapshotStartEntriesVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	entriesVector := builder.EndVector(len(offsets))

	checksumOffset := builder.CreateByteVector(checksum[:])

	types.SnapshotStart(builder)
	types.SnapshotAddVersion(builder, snapshotVersion)
	types.SnapshotAddCreatedAt(builder, createdAt)
	types.SnapshotAddEntries(builder, entriesVector)
	types.SnapshotAddChecksum(builder, checksumOffset)
	builder.Finish(types.SnapshotEnd(builder))

	return builder.FinishedBytes()
}

// parse decodes and verifies a raw snapshot.
func parse(raw []byte) (info *Info, entries []entry, retErr error) {
	// FlatBuffers panics on malformed data
	defer func() {
		if r := recover(); r != nil {
			info, entries = nil, nil
			retErr = fmt.Errorf("malformed snapshot data")
		}
	}()

	if len(raw) < 8 {
		return nil, nil, fmt.Errorf("snapshot data too short")
	}

	snap := types.GetRootAsSnapshot(raw, 0)

	if snap.Version() != snapshotVersion {
		return nil, nil, fmt.Errorf("unsupported snapshot version %d", snap.Version())
	}

	stored := snap.ChecksumBytes()
	if len(stored) != 32 {
		return nil, nil, fmt.Errorf("invalid checksum length: %d", len(stored))
	}

	entries = make([]entry, snap.EntriesLength())
	var e types.SnapshotEntry

	for i := range entries {
		if !snap.Entries(&e, i) {
			return nil, nil, fmt.Errorf("read entry %d", i)
		}

		entries[i] = entry{
			key:   bytes.Clone(e.KeyBytes()),
			value: bytes.Clone(e.ValueBytes()),
		}

		if i > 0 && bytes.Compare(entries[i-1].key, entries[i].key) >= 0 {
			return nil, nil, fmt.Errorf("entry %d out of order", i)
		}
	}

	computed := computeChecksum(snap.Version(), snap.CreatedAt(), entries)
	if !bytes.Equal(computed[:], stored) {
		return nil, nil, ErrChecksumMismatch
	}

	info = &Info{
		Version:   snap.Version(),
		CreatedAt: snap.CreatedAt(),
		Entries:   len(entries),
		Checksum:  computed,
	}

	return info, entries, nil
}

// computeChecksum hashes the canonical snapshot content.
// Format: version (4 bytes) + created_at (8 bytes) + for each entry
// key length (4 bytes) + key + value length (4 bytes) + value.
func computeChecksum(version uint32, createdAt uint64, entries []entry) [32]byte {
	hasher := blake3.New()

	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], version)
	hasher.Write(buf[:4])

	binary.BigEndian.PutUint64(buf[:], createdAt)
	hasher.Write(buf[:])

	for _, e := range entries {
		binary.BigEndian.PutUint32(buf[:4], uint32(len(e.key)))
		hasher.Write(buf[:4])
		hasher.Write(e.key)

		binary.BigEndian.PutUint32(buf[:4], uint32(len(e.value)))
		hasher.Write(buf[:4])
		hasher.Write(e.value)
	}

	var checksum [32]byte
	hasher.Sum(checksum[:0])

	return checksum
}

func compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}
