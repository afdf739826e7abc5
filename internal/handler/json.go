package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// maxBodySize caps request bodies.
const maxBodySize = 1 << 20

// requestError is a malformed request. It always maps to 400.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	if len(args) == 0 {
		return &requestError{msg: format}
	}
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

// readBody reads a non-empty request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, badRequest("request body is too large or unreadable")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, badRequest("request body is required")
	}
	return body, nil
}

// decodeObject reads a JSON object body and calls fn for each field. Type
// errors inside fn are reported against the field name.
func decodeObject(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}

	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return badRequest("request body must be a JSON object")
	}
	err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if err := fn(d, string(key)); err != nil {
			var re *requestError
			if errors.As(err, &re) {
				return re
			}
			return badRequest("invalid value for %q", string(key))
		}
		return nil
	})
	if err != nil {
		var re *requestError
		if errors.As(err, &re) {
			return re
		}
		return badRequest("malformed JSON body")
	}
	return nil
}

// decodeString reads a string. null reads as "".
func decodeString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decodeInt reads an integer, accepting numeric strings.
func decodeInt(d *jx.Decoder) (int, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		return strconv.Atoi(strings.TrimSpace(s))
	case jx.Null:
		return 0, d.Null()
	default:
		return d.Int()
	}
}

// decodeDecimal reads a money amount given as a number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(strings.TrimSpace(s))
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	}
}

// decodeBool reads a boolean. null reads as false.
func decodeBool(d *jx.Decoder) (bool, error) {
	if d.Next() == jx.Null {
		return false, d.Null()
	}
	return d.Bool()
}

// decodeArray calls fn for each element of an array. null is an empty
// array.
func decodeArray(d *jx.Decoder, fn func(d *jx.Decoder) error) error {
	switch d.Next() {
	case jx.Null:
		return d.Null()
	case jx.Array:
		return d.Arr(fn)
	default:
		return errors.New("expected array")
	}
}

// decodeFields calls fn for each field of a nested object.
func decodeFields(d *jx.Decoder, fn func(d *jx.Decoder, key string) error) error {
	if d.Next() != jx.Object {
		return errors.New("expected object")
	}
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	})
}
