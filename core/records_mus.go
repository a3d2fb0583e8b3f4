package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// Record serializers. Each exposes the mus-go serializer method set
// (Marshal, Unmarshal, Size) for one stored type.
var (
	IDMUS           = idMUS{}
	PolicyMUS       = recordMUS[Policy]{encode: encodePolicy, decode: decodePolicy}
	PolicyChunkMUS  = recordMUS[PolicyChunk]{encode: encodeChunk, decode: decodeChunk}
	ImageMUS        = recordMUS[Image]{encode: encodeImage, decode: decodeImage}
	PolicyUpdateMUS = recordMUS[PolicyUpdate]{encode: encodeUpdate, decode: decodeUpdate}
	IngestionRunMUS = recordMUS[IngestionRun]{encode: encodeRun, decode: decodeRun}
)

type idMUS struct{}

func (idMUS) Marshal(id ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(id ID) int {
	return varint.Uint64.Size(uint64(id))
}

type recordMUS[T any] struct {
	encode func(e *encoder, v *T)
	decode func(d *decoder, v *T)
}

func (s recordMUS[T]) Marshal(v T, bs []byte) int {
	e := &encoder{bs: bs}
	s.encode(e, &v)
	return e.n
}

func (s recordMUS[T]) Unmarshal(bs []byte) (T, int, error) {
	var v T
	d := &decoder{bs: bs}
	s.decode(d, &v)
	if d.err != nil {
		var zero T
		return zero, d.n, d.err
	}
	return v, d.n, nil
}

func (s recordMUS[T]) Size(v T) int {
	e := &encoder{sizing: true}
	s.encode(e, &v)
	return e.n
}

// encoder marshals fields in order, or only sums their sizes when sizing is set.
type encoder struct {
	bs     []byte
	n      int
	sizing bool
}

func (e *encoder) uint64(v uint64) {
	if e.sizing {
		e.n += varint.Uint64.Size(v)
		return
	}
	e.n += varint.Uint64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) int64(v int64) {
	if e.sizing {
		e.n += varint.Int64.Size(v)
		return
	}
	e.n += varint.Int64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) str(v string) {
	if e.sizing {
		e.n += ord.String.Size(v)
		return
	}
	e.n += ord.String.Marshal(v, e.bs[e.n:])
}

func (e *encoder) boolean(v bool) {
	if e.sizing {
		e.n += ord.Bool.Size(v)
		return
	}
	e.n += ord.Bool.Marshal(v, e.bs[e.n:])
}

func (e *encoder) float32(v float32) {
	if e.sizing {
		e.n += raw.Float32.Size(v)
		return
	}
	e.n += raw.Float32.Marshal(v, e.bs[e.n:])
}

func (e *encoder) id(v ID) {
	e.uint64(uint64(v))
}

// Times are stored as Unix microseconds in UTC.
func (e *encoder) time(v time.Time) {
	e.int64(v.UnixMicro())
}

func (e *encoder) optionalID(v *ID) {
	e.boolean(v != nil)
	if v != nil {
		e.id(*v)
	}
}

// A nil vector and an empty one are distinct: nil means embedding failed.
func (e *encoder) vector(v []float32) {
	e.boolean(v != nil)
	if v == nil {
		return
	}
	e.uint64(uint64(len(v)))
	for _, f := range v {
		e.float32(f)
	}
}

// decoder unmarshals fields in order and stops at the first error.
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

func (d *decoder) str() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) boolean() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) float32() float32 {
	if d.err != nil {
		return 0
	}
	v, n, err := raw.Float32.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) id() ID {
	return ID(d.uint64())
}

func (d *decoder) time() time.Time {
	v := d.int64()
	if d.err != nil {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

func (d *decoder) optionalID() *ID {
	if !d.boolean() || d.err != nil {
		return nil
	}
	id := d.id()
	return &id
}

func (d *decoder) vector() []float32 {
	if !d.boolean() || d.err != nil {
		return nil
	}
	length := d.uint64()
	if d.err != nil {
		return nil
	}
	if remaining := uint64(len(d.bs) - d.n); length > remaining/4 {
		d.err = ErrTruncatedRecord
		return nil
	}
	v := make([]float32, length)
	for i := range v {
		v[i] = d.float32()
	}
	return v
}

func encodePolicy(e *encoder, p *Policy) {
	e.id(p.Id)
	e.str(p.Title)
	e.str(p.Description)
	e.str(p.SourceURL)
	e.str(p.MarkdownContent)
	e.str(p.TextContent)
	e.str(string(p.Metadata.ScrapeTimestamp))
	e.str(p.Metadata.SourceFolder)
	e.time(p.Metadata.ProcessedAt)
	e.str(p.Metadata.ContentHash)
	e.str(p.Metadata.IngestionRun)
	e.time(p.CreatedAt)
	e.time(p.UpdatedAt)
}

func decodePolicy(d *decoder, p *Policy) {
	p.Id = d.id()
	p.Title = d.str()
	p.Description = d.str()
	p.SourceURL = d.str()
	p.MarkdownContent = d.str()
	p.TextContent = d.str()
	p.Metadata.ScrapeTimestamp = ScrapeTimestamp(d.str())
	p.Metadata.SourceFolder = d.str()
	p.Metadata.ProcessedAt = d.time()
	p.Metadata.ContentHash = d.str()
	p.Metadata.IngestionRun = d.str()
	p.CreatedAt = d.time()
	p.UpdatedAt = d.time()
}

func encodeChunk(e *encoder, c *PolicyChunk) {
	e.id(c.Id)
	e.id(c.PolicyId)
	e.uint64(uint64(c.Index))
	e.str(c.Content)
	e.vector(c.Embedding)
}

func decodeChunk(d *decoder, c *PolicyChunk) {
	c.Id = d.id()
	c.PolicyId = d.id()
	c.Index = int(d.uint64())
	c.Content = d.str()
	c.Embedding = d.vector()
}

func encodeImage(e *encoder, img *Image) {
	e.id(img.Id)
	e.id(img.PolicyId)
	e.str(img.Filename)
	e.str(img.RelativePath)
	e.str(img.ContentType)
	e.int64(img.Size)
}

func decodeImage(d *decoder, img *Image) {
	img.Id = d.id()
	img.PolicyId = d.id()
	img.Filename = d.str()
	img.RelativePath = d.str()
	img.ContentType = d.str()
	img.Size = d.int64()
}

func encodeUpdate(e *encoder, u *PolicyUpdate) {
	e.id(u.Id)
	e.optionalID(u.PolicyId)
	e.optionalID(u.AdminId)
	e.str(string(u.Action))
	e.str(u.Details)
	e.time(u.CreatedAt)
}

func decodeUpdate(d *decoder, u *PolicyUpdate) {
	u.Id = d.id()
	u.PolicyId = d.optionalID()
	u.AdminId = d.optionalID()
	u.Action = UpdateAction(d.str())
	u.Details = d.str()
	u.CreatedAt = d.time()
}

func encodeRun(e *encoder, r *IngestionRun) {
	e.str(r.RunId)
	e.str(r.BaseDir)
	e.time(r.StartedAt)
	e.time(r.FinishedAt)
	e.uint64(uint64(r.Created))
	e.uint64(uint64(r.Updated))
	e.uint64(uint64(r.Skipped))
	e.uint64(uint64(r.Errored))
}

func decodeRun(d *decoder, r *IngestionRun) {
	r.RunId = d.str()
	r.BaseDir = d.str()
	r.StartedAt = d.time()
	r.FinishedAt = d.time()
	r.Created = int(d.uint64())
	r.Updated = int(d.uint64())
	r.Skipped = int(d.uint64())
	r.Errored = int(d.uint64())
}
