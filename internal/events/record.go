package events

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// ErrFieldType is returned by Record accessors when a field has the wrong JSON type.
var ErrFieldType = errors.New("unexpected field type")

// ErrShortRecord is returned when a record has fewer fields than its shape needs.
var ErrShortRecord = errors.New("record too short")

// Record is one raw long-poll update: a JSON array whose first element is
// the type code. Fields are kept undecoded until the classifier asks for them.
type Record []jx.Raw

// ParseRecord decodes a single JSON array into a Record.
func ParseRecord(data []byte) (Record, error) {
	return decodeRecord(jx.DecodeBytes(data))
}

// ParseBatch decodes a JSON array of records, e.g. the "updates" member of a
// long-poll response.
func ParseBatch(data []byte) ([]Record, error) {
	return DecodeBatch(jx.DecodeBytes(data))
}

// DecodeBatch reads an array of records from d. Elements that are not
// arrays are skipped and stand in the batch as empty records, which
// classify as Malformed.
func DecodeBatch(d *jx.Decoder) ([]Record, error) {
	if tt := d.Next(); tt != jx.Array {
		return nil, errors.Errorf("batch: expected array, got %s", tt)
	}
	var out []Record
	if err := d.Arr(func(d *jx.Decoder) error {
		if d.Next() != jx.Array {
			if err := d.Skip(); err != nil {
				return err
			}
			out = append(out, Record{})
			return nil
		}
		rec, err := decodeRecord(d)
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode batch")
	}
	return out, nil
}

func decodeRecord(d *jx.Decoder) (Record, error) {
	if tt := d.Next(); tt != jx.Array {
		return nil, errors.Errorf("record: expected array, got %s", tt)
	}
	rec := Record{}
	if err := d.Arr(func(d *jx.Decoder) error {
		// Raw references the decoder buffer, so copy it out.
		raw, err := d.RawAppend(nil)
		if err != nil {
			return err
		}
		rec = append(rec, raw)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode record")
	}
	return rec, nil
}

// Code returns the leading type code, or false if there is none.
func (r Record) Code() (int, bool) {
	v, err := r.Int(0)
	if err != nil {
		return 0, false
	}
	return int(v), true
}

// Type reports the JSON type of field i, jx.Invalid when out of range.
func (r Record) Type(i int) jx.Type {
	if i < 0 || i >= len(r) {
		return jx.Invalid
	}
	return r[i].Type()
}

func (r Record) field(i int, want jx.Type) (jx.Raw, error) {
	if i < 0 || i >= len(r) {
		return nil, errors.Wrapf(ErrShortRecord, "field %d of %d", i, len(r))
	}
	if got := r[i].Type(); got != want {
		return nil, errors.Wrapf(ErrFieldType, "field %d: want %s, got %s", i, want, got)
	}
	return r[i], nil
}

// Int decodes field i as an integer.
func (r Record) Int(i int) (int64, error) {
	raw, err := r.field(i, jx.Number)
	if err != nil {
		return 0, err
	}
	v, err := jx.DecodeBytes(raw).Int64()
	if err != nil {
		return 0, errors.Wrapf(ErrFieldType, "field %d: %v", i, err)
	}
	return v, nil
}

// Str decodes field i as a string.
func (r Record) Str(i int) (string, error) {
	raw, err := r.field(i, jx.String)
	if err != nil {
		return "", err
	}
	s, err := jx.DecodeBytes(raw).Str()
	if err != nil {
		return "", errors.Wrapf(ErrFieldType, "field %d: %v", i, err)
	}
	return s, nil
}

// Obj decodes field i as a flat object. String members keep their value,
// any other member is kept as its raw JSON text.
func (r Record) Obj(i int) (map[string]string, error) {
	raw, err := r.field(i, jx.Object)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.String {
			s, err := d.Str()
			if err != nil {
				return err
			}
			out[key] = s
			return nil
		}
		v, err := d.Raw()
		if err != nil {
			return err
		}
		out[key] = v.String()
		return nil
	}); err != nil {
		return nil, errors.Wrapf(ErrFieldType, "field %d: %v", i, err)
	}
	return out, nil
}
