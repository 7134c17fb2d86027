package events

import (
	"bytes"
	"encoding/json"
	"io"
	"math/big"
	"strings"
)

// integralNumbers rewrites numbers written in fraction or exponent form,
// such as 1700000000000.0 or 1.6711422e7, as integer literals when they hold
// an exact integer. Other numbers and malformed input are returned as given.
func integralNumbers(data json.RawMessage) json.RawMessage {
	if !bytes.ContainsAny(data, ".eE") {
		return data
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return data
	}
	if _, err := dec.Token(); err != io.EOF {
		return data
	}

	v, changed := rewriteNumbers(v)
	if !changed {
		return data
	}

	out, err := json.Marshal(v)
	if err != nil {
		return data
	}
	return out
}

func rewriteNumbers(v any) (any, bool) {
	switch t := v.(type) {
	case json.Number:
		return integral(t)
	case map[string]any:
		changed := false
		for k, elem := range t {
			if nv, ok := rewriteNumbers(elem); ok {
				t[k] = nv
				changed = true
			}
		}
		return t, changed
	case []any:
		changed := false
		for i, elem := range t {
			if nv, ok := rewriteNumbers(elem); ok {
				t[i] = nv
				changed = true
			}
		}
		return t, changed
	default:
		return v, false
	}
}

func integral(n json.Number) (any, bool) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		return n, false
	}

	f, _, err := big.ParseFloat(s, 10, 256, big.ToNearestEven)
	if err != nil || f.Acc() != big.Exact || !f.IsInt() {
		return n, false
	}
	// wider than int64 fails to decode either way
	if f.MantExp(nil) > 64 {
		return n, false
	}

	i, acc := f.Int(nil)
	if acc != big.Exact {
		return n, false
	}
	return json.Number(i.String()), true
}
