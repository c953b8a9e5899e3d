// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/newsdesk/core"
)

// Records are encoded field by field with MUS primitives. Timestamps are
// stored as Unix microseconds. New fields must be appended at the end of a
// record's encoding.

// encoder runs in two passes: with a nil buffer it only accumulates the
// encoded size, then it writes into a buffer of exactly that size.
type encoder struct {
	bs []byte
	n  int
}

func encode(fn func(e *encoder)) []byte {
	var sizer encoder
	fn(&sizer)
	e := encoder{bs: make([]byte, sizer.n)}
	fn(&e)
	return e.bs
}

func (e *encoder) uint64(v uint64) {
	if e.bs == nil {
		e.n += varint.Uint64.Size(v)
		return
	}
	e.n += varint.Uint64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) int64(v int64) {
	if e.bs == nil {
		e.n += varint.Int64.Size(v)
		return
	}
	e.n += varint.Int64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) int(v int) {
	e.int64(int64(v))
}

func (e *encoder) string(v string) {
	if e.bs == nil {
		e.n += ord.String.Size(v)
		return
	}
	e.n += ord.String.Marshal(v, e.bs[e.n:])
}

func (e *encoder) bool(v bool) {
	if e.bs == nil {
		e.n += ord.Bool.Size(v)
		return
	}
	e.n += ord.Bool.Marshal(v, e.bs[e.n:])
}

func (e *encoder) time(t time.Time) {
	if t.IsZero() {
		e.int64(0)
		return
	}
	e.int64(t.UnixMicro())
}

func (e *encoder) strings(v []string) {
	e.int(len(v))
	for _, s := range v {
		e.string(s)
	}
}

func (e *encoder) vector(v []float32) {
	e.int(len(v))
	for _, f := range v {
		if e.bs == nil {
			e.n += raw.Float32.Size(f)
			continue
		}
		e.n += raw.Float32.Marshal(f, e.bs[e.n:])
	}
}

// metadata is written in key order so equal maps encode identically.
func (e *encoder) metadata(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	e.int(len(keys))
	for _, k := range keys {
		e.string(k)
		e.string(m[k])
	}
}

// decoder reads fields in order and keeps the first error.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) uint64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) int64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) int() int {
	return int(d.int64())
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) bool() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) time() time.Time {
	us := d.int64()
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}

// length reads a collection length and rejects values the remaining input
// cannot possibly hold.
func (d *decoder) length() int {
	l := d.int()
	if d.err == nil && (l < 0 || l > len(d.bs)-d.n) {
		d.err = ErrTruncatedData
		return 0
	}
	return l
}

func (d *decoder) strings() []string {
	l := d.length()
	if l == 0 {
		return nil
	}
	out := make([]string, 0, l)
	for i := 0; i < l && d.err == nil; i++ {
		out = append(out, d.string())
	}
	return out
}

func (d *decoder) vector() []float32 {
	l := d.length()
	if l == 0 {
		return nil
	}
	out := make([]float32, l)
	for i := 0; i < l && d.err == nil; i++ {
		v, n, err := raw.Float32.Unmarshal(d.bs[d.n:])
		d.n += n
		d.err = err
		out[i] = v
	}
	return out
}

func (d *decoder) metadata() map[string]string {
	l := d.length()
	if l == 0 {
		return nil
	}
	out := make(map[string]string, l)
	for i := 0; i < l && d.err == nil; i++ {
		k := d.string()
		out[k] = d.string()
	}
	return out
}

func (d *decoder) finish(what string) error {
	if d.err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSerializationFailed, what, d.err)
	}
	return nil
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	return encode(func(e *encoder) { e.uint64(uint64(id)) })
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	d := decoder{bs: data}
	id := core.ID(d.uint64())
	return id, d.finish("id")
}

// MarshalNewsRecord serializes a NewsRecord to bytes.
func MarshalNewsRecord(record *core.NewsRecord) []byte {
	return encode(func(e *encoder) {
		e.uint64(uint64(record.Id))
		e.string(record.Session)
		e.string(record.Title)
		e.string(record.Content)
		e.string(record.URL)
		e.string(record.Source)
		e.time(record.Date)
		e.strings(record.Keywords)
		e.bool(record.Embedded)
		e.int(record.ExpireDays)
		e.int(record.UpdatedCount)
		e.time(record.InsertedAt)
		e.time(record.UpdatedAt)
	})
}

// UnmarshalNewsRecord deserializes a NewsRecord from bytes.
func UnmarshalNewsRecord(data []byte) (*core.NewsRecord, error) {
	d := decoder{bs: data}
	record := &core.NewsRecord{
		Id:           core.ID(d.uint64()),
		Session:      d.string(),
		Title:        d.string(),
		Content:      d.string(),
		URL:          d.string(),
		Source:       d.string(),
		Date:         d.time(),
		Keywords:     d.strings(),
		Embedded:     d.bool(),
		ExpireDays:   d.int(),
		UpdatedCount: d.int(),
		InsertedAt:   d.time(),
		UpdatedAt:    d.time(),
	}
	if err := d.finish("news record"); err != nil {
		return nil, err
	}
	return record, nil
}

// MarshalStoredVector serializes a StoredVector to bytes.
func MarshalStoredVector(v *StoredVector) []byte {
	return encode(func(e *encoder) {
		e.uint64(v.Seq)
		e.string(v.Entry.ID)
		e.vector(v.Entry.Vector)
		e.metadata(v.Entry.Metadata)
	})
}

// UnmarshalStoredVector deserializes a StoredVector from bytes.
func UnmarshalStoredVector(data []byte) (*StoredVector, error) {
	d := decoder{bs: data}
	v := &StoredVector{Seq: d.uint64()}
	v.Entry.ID = d.string()
	v.Entry.Vector = d.vector()
	v.Entry.Metadata = d.metadata()
	if err := d.finish("vector"); err != nil {
		return nil, err
	}
	return v, nil
}

// MarshalMemoryEntry serializes a MemoryEntry to bytes.
func MarshalMemoryEntry(entry *core.MemoryEntry) []byte {
	return encode(func(e *encoder) {
		e.string(entry.Session)
		e.string(entry.Query)
		e.string(entry.Summary)
		e.strings(entry.Keywords)
		e.time(entry.CreatedAt)
	})
}

// UnmarshalMemoryEntry deserializes a MemoryEntry from bytes.
func UnmarshalMemoryEntry(data []byte) (*core.MemoryEntry, error) {
	d := decoder{bs: data}
	entry := &core.MemoryEntry{
		Session:   d.string(),
		Query:     d.string(),
		Summary:   d.string(),
		Keywords:  d.strings(),
		CreatedAt: d.time(),
	}
	if err := d.finish("memory entry"); err != nil {
		return nil, err
	}
	return entry, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *Checkpoint) []byte {
	return encode(func(e *encoder) {
		e.string(checkpoint.Name)
		e.uint64(checkpoint.Position)
		e.time(checkpoint.UpdatedAt)
	})
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*Checkpoint, error) {
	d := decoder{bs: data}
	checkpoint := &Checkpoint{
		Name:      d.string(),
		Position:  d.uint64(),
		UpdatedAt: d.time(),
	}
	if err := d.finish("checkpoint"); err != nil {
		return nil, err
	}
	return checkpoint, nil
}

// MarshalDimension serializes an index dimension to bytes.
func MarshalDimension(dim int) []byte {
	return encode(func(e *encoder) { e.int(dim) })
}

// UnmarshalDimension deserializes an index dimension from bytes.
func UnmarshalDimension(data []byte) (int, error) {
	d := decoder{bs: data}
	dim := d.int()
	return dim, d.finish("dimension")
}
