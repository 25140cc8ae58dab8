package upstream

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/similar-products/internal/domain/product"
)

// decodeIDs parses a JSON array of string identifiers. A null body yields an
// empty list.
func decodeIDs(data []byte) ([]string, error) {
	d := jx.DecodeBytes(data)
	if d.Next() == jx.Null {
		if err := d.Null(); err != nil {
			return nil, err
		}
		return nil, requireEnd(d)
	}

	var ids []string
	if err := d.Arr(func(d *jx.Decoder) error {
		id, err := d.Str()
		if err != nil {
			return errors.Wrap(err, "id")
		}
		ids = append(ids, id)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := requireEnd(d); err != nil {
		return nil, err
	}
	return ids, nil
}

// decodeProduct parses a product detail object. A null body yields nil.
// Unknown fields are skipped and null fields keep their zero value, but a
// record without an id is rejected.
func decodeProduct(data []byte) (*product.Product, error) {
	d := jx.DecodeBytes(data)
	if d.Next() == jx.Null {
		if err := d.Null(); err != nil {
			return nil, err
		}
		return nil, requireEnd(d)
	}

	var p product.Product
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		switch string(key) {
		case "id":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "id")
			}
			p.ID = v
		case "name":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "name")
			}
			p.Name = v
		case "price":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "price")
			}
			p.Price = v
		case "availability":
			v, err := d.Bool()
			if err != nil {
				return errors.Wrap(err, "availability")
			}
			p.Availability = v
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if err := requireEnd(d); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.New("missing id")
	}
	return &p, nil
}

// requireEnd fails when anything but whitespace follows the decoded value.
func requireEnd(d *jx.Decoder) error {
	if tt := d.Next(); tt != jx.Invalid {
		return errors.Errorf("unexpected %s after value", tt)
	}
	return nil
}

// decodeDecimal reads a JSON number, or a string holding one, without going
// through float64.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(string(n))
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	default:
		return decimal.Decimal{}, errors.Errorf("unexpected %s", d.Next())
	}
}
